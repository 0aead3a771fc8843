package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sahilm/fuzzy"

	"github.com/aether-labs/aether/internal/config"
	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/report"
)

// reportField is the multipart field carrying the uploaded document.
const reportField = "report"

// multipartOverhead allows for boundaries and headers on top of the file.
const multipartOverhead = 1 << 20

type createAnalysisRequest struct {
	Text string `json:"text"`
}

type createAnalysisResponse struct {
	AnalysisID string `json:"analysis_id"`
}

// handleCreateAnalysis accepts a multipart upload or a JSON body with
// pasted text and starts the pipeline in the background.
func (s *Server) handleCreateAnalysis(w http.ResponseWriter, r *http.Request) {
	doc, err := s.readDocument(w, r)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	id, err := s.submitter.Submit(r.Context(), doc)
	if err != nil {
		s.respondErr(w, err)
		return
	}

	w.Header().Set("Location", "/api/v1/analyses/"+id)
	s.respondJSON(w, http.StatusAccepted, createAnalysisResponse{AnalysisID: id})
}

func (s *Server) readDocument(w http.ResponseWriter, r *http.Request) (core.Document, error) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		mediaType = ""
	}
	limit := s.extractor.MaxBytes()

	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return core.Document{}, err
			}
			return core.Document{}, core.ErrValidation("INVALID_FORM", "invalid multipart form")
		}
		file, header, err := r.FormFile(reportField)
		if err != nil {
			if text := r.FormValue("text"); text != "" {
				return s.extractor.FromText(text)
			}
			return core.Document{}, core.ErrValidation(core.CodeEmptyDocument, "no report file provided")
		}
		defer file.Close()
		return s.extractor.FromReader(file, header.Filename, header.Header.Get("Content-Type"))

	case "application/json":
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
		var req createAnalysisRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return core.Document{}, err
			}
			return core.Document{}, core.ErrValidation("INVALID_JSON", "invalid JSON body")
		}
		return s.extractor.FromText(req.Text)

	default:
		// Raw bodies are treated as a file upload of the declared type.
		return s.extractor.FromReader(io.LimitReader(r.Body, limit+1), "", r.Header.Get("Content-Type"))
	}
}

func (s *Server) handleListAnalyses(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.List(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	type summary struct {
		ID        string     `json:"id"`
		State     core.State `json:"state"`
		Filename  string     `json:"filename,omitempty"`
		Debates   int        `json:"debates"`
		Factors   int        `json:"factors"`
		CreatedAt string     `json:"created_at"`
	}
	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		snaps = filterSessions(snaps, q)
	}
	out := make([]summary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, summary{
			ID:        snap.ID,
			State:     snap.State,
			Filename:  snap.Document.Filename,
			Debates:   len(snap.Debates),
			Factors:   len(snap.Factors),
			CreatedAt: snap.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	s.respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "analysisID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	snap := sess.Snapshot()
	snap.Document.Data = nil
	s.respondJSON(w, http.StatusOK, snap)
}

// handleGetReport renders the finished session as Markdown. Unfinished
// sessions are a conflict.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.Get(r.Context(), chi.URLParam(r, "analysisID"))
	if err != nil {
		s.respondErr(w, err)
		return
	}
	snap := sess.Snapshot()
	if !snap.State.IsTerminal() {
		s.respondError(w, http.StatusConflict, core.CodeInvalidTransition,
			"analysis is still running (state "+string(snap.State)+")")
		return
	}

	md, err := report.Markdown(snap)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	body := []byte(md)
	etag := config.CalculateETag(body)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && strings.Contains(match, etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("writing report failed", "error", err)
	}
}

// handleDeleteAnalysis removes a finished session and its progress topic.
func (s *Server) handleDeleteAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")
	sess, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if st := sess.State(); st.IsActive() {
		s.respondError(w, http.StatusConflict, core.CodeInvalidTransition,
			"analysis is still running (state "+string(st)+")")
		return
	}
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.broadcaster.Remove(id)
	s.logger.Info("analysis deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// filterSessions keeps sessions whose filename or factor names fuzzy-match
// q, best matches first.
func filterSessions(snaps []core.SessionSnapshot, q string) []core.SessionSnapshot {
	targets := make([]string, len(snaps))
	for i, snap := range snaps {
		parts := []string{snap.Document.Filename}
		for _, f := range snap.Factors {
			parts = append(parts, f.Name)
		}
		targets[i] = strings.Join(parts, " ")
	}

	matches := fuzzy.Find(q, targets)
	out := make([]core.SessionSnapshot, 0, len(matches))
	for _, m := range matches {
		out = append(out, snaps[m.Index])
	}
	return out
}

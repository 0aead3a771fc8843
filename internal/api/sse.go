package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aether-labs/aether/internal/core"
	"github.com/aether-labs/aether/internal/events"
)

// handleStream streams the progress of one analysis as Server-Sent Events.
// Each update is a single "data:" frame; comment lines keep idle
// connections open. The stream ends after the terminal event.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "analysisID")
	ctx := r.Context()

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "", "streaming not supported")
		return
	}

	sub, err := s.broadcaster.Subscribe(id)
	if err != nil {
		// The topic is gone (server restart or eviction); replay the stored
		// outcome if the session is still known.
		sess, getErr := s.store.Get(ctx, id)
		if getErr != nil {
			s.respondErr(w, err)
			return
		}
		writeSSEHeaders(w)
		s.sendEvent(w, flusher, snapshotEvent(sess.Snapshot()))
		return
	}
	defer s.broadcaster.Unsubscribe(sub)

	writeSSEHeaders(w)
	flusher.Flush()
	s.logger.Debug("SSE client connected", "session_id", id, "remote_addr", r.RemoteAddr)

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("SSE client disconnected", "session_id", id)
			return

		case <-heartbeat.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			s.sendEvent(w, flusher, ev)
			if ev.IsTerminal() {
				return
			}
		}
	}
}

func writeSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}

// sendEvent writes one data frame.
func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, ev events.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

// snapshotEvent summarizes a stored session for a client that connects
// after its topic is gone.
func snapshotEvent(snap core.SessionSnapshot) events.ProgressEvent {
	switch snap.State {
	case core.StateComplete:
		return events.NewProgressEvent(snap.State, "✅ Analysis complete!", map[string]interface{}{
			"debates":      snap.Debates,
			"final_report": snap.FinalReport,
		})
	case core.StateError:
		return events.NewProgressEvent(snap.State, "❌ Error: "+snap.Error, nil)
	}
	return events.NewProgressEvent(snap.State, fmt.Sprintf("Analysis is %s", snap.State), nil)
}

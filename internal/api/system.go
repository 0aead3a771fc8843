package api

import (
	"net/http"

	"github.com/aether-labs/aether/internal/diagnostics"
)

type sessionCounts struct {
	Total  int `json:"total"`
	Active int `json:"active"`
}

type systemResponse struct {
	Service       string                    `json:"service"`
	Sessions      sessionCounts             `json:"sessions"`
	DroppedEvents int64                     `json:"dropped_events"`
	System        diagnostics.SystemMetrics `json:"system"`
}

// handleSystem reports session counts, dropped progress events and host
// resource usage.
func (s *Server) handleSystem(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.store.List(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	counts := sessionCounts{Total: len(snaps)}
	for _, snap := range snaps {
		if snap.State.IsActive() {
			counts.Active++
		}
	}

	s.respondJSON(w, http.StatusOK, systemResponse{
		Service:       ServiceName,
		Sessions:      counts,
		DroppedEvents: s.broadcaster.DroppedCount(),
		System:        s.diagnostics.Collect(),
	})
}

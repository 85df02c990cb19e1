package web

import (
	"net/http"

	"github.com/JonMunkholm/catalog-importer/internal/core"
)

// HealthResponse reports process liveness and slot usage.
type HealthResponse struct {
	Status  string              `json:"status"`
	Workers *core.LimiterStatus `json:"workers,omitempty"`
	Uploads core.LimiterStatus  `json:"uploads"`
}

// handleHealth returns the current state of the worker pool and the upload
// limiter. Used for liveness checks and to see whether uploads would queue.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Uploads: s.uploads.Status(),
	}
	if s.worker != nil {
		st := s.worker.Status()
		resp.Workers = &st
	}
	writeJSON(w, resp)
}

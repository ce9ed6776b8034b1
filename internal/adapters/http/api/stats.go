package api

import "net/http"

// StatsHandler handles stats requests.
type StatsHandler struct {
	svc SessionService
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(svc SessionService) *StatsHandler {
	return &StatsHandler{svc: svc}
}

// HandleStats handles GET /stats.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

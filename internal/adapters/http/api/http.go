// Package api declares HTTP contracts and route registration for the
// tracking gateway.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/okian/ridetrack/internal/app"
)

// SessionService is the dependency bundle the handlers work against. Using
// an interface keeps the handler layer loosely coupled to the app package.
type SessionService interface {
	CreateSession(ctx context.Context, storeID, orderItemID string, sellerLat, sellerLng float64) (*app.Session, error)
	Get(id string) (*app.Session, bool)
	End(id string) error
	Stats() map[string]any
}

// Server wires HTTP routes for the gateway API.
type Server struct {
	sessions *SessionsHandler
	health   *HealthHandler
	stats    *StatsHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(svc SessionService) *Server {
	return &Server{
		sessions: NewSessionsHandler(svc),
		health:   NewHealthHandler(),
		stats:    NewStatsHandler(svc),
	}
}

// Register attaches all routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.health.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.health.HandleMetrics)
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.stats.HandleStats, "stats"))

	mux.HandleFunc("POST /v1/sessions", MetricsMiddleware(s.sessions.HandleCreate, "sessions_create"))
	mux.HandleFunc("GET /v1/sessions/{id}/riders", MetricsMiddleware(s.sessions.HandleRiders, "sessions_riders"))
	mux.HandleFunc("GET /v1/sessions/{id}/assigned", MetricsMiddleware(s.sessions.HandleAssigned, "sessions_assigned"))
	mux.HandleFunc("GET /v1/sessions/{id}/markers", MetricsMiddleware(s.sessions.HandleMarkers, "sessions_markers"))
	mux.HandleFunc("POST /v1/sessions/{id}/ready", MetricsMiddleware(s.sessions.HandleReady, "sessions_ready"))
	mux.HandleFunc("DELETE /v1/sessions/{id}", MetricsMiddleware(s.sessions.HandleEnd, "sessions_end"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

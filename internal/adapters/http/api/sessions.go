package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/ridetrack/internal/app"
	"github.com/okian/ridetrack/internal/domain/model"
)

// SessionsHandler handles tracking-session requests.
type SessionsHandler struct {
	svc SessionService
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(svc SessionService) *SessionsHandler {
	return &SessionsHandler{svc: svc}
}

// createSessionRequest opens a tracking view for one order item. Seller
// coordinates are pointers so a dashboard whose geolocation was denied gets
// a clear rejection instead of tracking from (0, 0).
type createSessionRequest struct {
	StoreID     string   `json:"store_id"`
	OrderItemID string   `json:"order_item_id"`
	SellerLat   *float64 `json:"seller_lat"`
	SellerLng   *float64 `json:"seller_lng"`
}

func (r createSessionRequest) validate() error {
	switch {
	case r.StoreID == "":
		return errors.New("missing store_id")
	case r.OrderItemID == "":
		return errors.New("missing order_item_id")
	case r.SellerLat == nil || r.SellerLng == nil:
		return errors.New("seller location required")
	}
	return nil
}

type createSessionResponse struct {
	SessionID   string `json:"session_id"`
	OrderItemID string `json:"order_item_id"`
}

type ridersResponse struct {
	Riders   []model.RiderLocation `json:"riders"`
	Degraded []string              `json:"degraded,omitempty"`
}

type assignedResponse struct {
	Assigned *model.RiderLocation `json:"assigned"`
}

// HandleCreate handles POST /v1/sessions.
func (h *SessionsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	s, err := h.svc.CreateSession(r.Context(), req.StoreID, req.OrderItemID, *req.SellerLat, *req.SellerLng)
	if err != nil {
		if errors.Is(err, app.ErrSellerLocation) {
			writeError(w, http.StatusBadRequest, "bad_request", err)
			return
		}
		writeError(w, http.StatusBadGateway, "session_start_failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   s.ID(),
		OrderItemID: s.OrderItemID(),
	})
}

// HandleRiders handles GET /v1/sessions/{id}/riders.
func (h *SessionsHandler) HandleRiders(w http.ResponseWriter, r *http.Request) {
	s, ok := h.svc.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", app.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, ridersResponse{
		Riders:   s.Riders(),
		Degraded: s.Degraded(),
	})
}

// HandleAssigned handles GET /v1/sessions/{id}/assigned.
func (h *SessionsHandler) HandleAssigned(w http.ResponseWriter, r *http.Request) {
	s, ok := h.svc.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", app.ErrSessionNotFound)
		return
	}
	var resp assignedResponse
	if rl, ok := s.Assigned(); ok {
		resp.Assigned = &rl
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleMarkers handles GET /v1/sessions/{id}/markers.
func (h *SessionsHandler) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.svc.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", app.ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"markers": s.Markers()})
}

// HandleReady handles POST /v1/sessions/{id}/ready.
func (h *SessionsHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	s, ok := h.svc.Get(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", app.ErrSessionNotFound)
		return
	}
	if err := s.MarkReady(r.Context()); err != nil {
		writeError(w, http.StatusBadGateway, "mark_ready_failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleEnd handles DELETE /v1/sessions/{id}.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.End(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, "not_found", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

package web

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// reserve handles POST /api/products/{id}/reserve.
func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")

	var req struct {
		SessionID string `json:"sessionId"`
		Quantity  int    `json:"quantity"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	expiresAt, err := h.reservations.Reserve(r.Context(), productID, req.SessionID, req.Quantity)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	type response struct {
		Reserved  bool      `json:"reserved"`
		ExpiresAt time.Time `json:"expiresAt"`
	}
	writeJSON(w, response{Reserved: true, ExpiresAt: expiresAt})
}

// release handles DELETE /api/products/{id}/reserve. Releasing a hold that no
// longer exists is a success.
func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		var req struct {
			SessionID string `json:"sessionId"`
		}
		if decodeBody(r, &req) {
			sessionID = req.SessionID
		}
	}
	if sessionID == "" {
		writeError(w, r, "sessionId is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.reservations.Release(r.Context(), productID, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Released bool `json:"released"`
	}
	writeJSON(w, response{Released: true})
}

// availability handles GET /api/products/{id}/availability.
func (h *Handler) availability(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "id")
	avail, err := h.reservations.CheckAvailability(r.Context(), productID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, avail)
}

package web

import (
	"net/http"

	"jewelstore/internal/core"
)

// touchCart handles POST /api/cart/touch. The storefront calls this whenever
// an identified customer's cart changes; an empty items list clears the
// tracked cart.
func (h *Handler) touchCart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email        string          `json:"email"`
		CustomerName string          `json:"customerName"`
		SessionID    string          `json:"sessionId"`
		Items        []core.CartItem `json:"items"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.carts.Touch(r.Context(), req.Email, req.CustomerName, req.SessionID, req.Items); err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Tracked bool `json:"tracked"`
	}
	writeJSON(w, response{Tracked: true})
}

// cartRecovered handles POST /api/cart/recovered, hit by the link embedded in
// reminder emails.
func (h *Handler) cartRecovered(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" {
		writeError(w, r, "email is required", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	if err := h.carts.MarkRecovered(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Recovered bool `json:"recovered"`
	}
	writeJSON(w, response{Recovered: true})
}

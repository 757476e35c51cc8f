package web

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"jewelstore/internal/core"
)

// listOrders handles GET /api/admin/orders?status=&limit=.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		status = &s
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	orders, err := h.orders.ListOrders(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Orders []core.Order `json:"orders"`
	}
	if orders == nil {
		orders = []core.Order{}
	}
	writeJSON(w, response{Orders: orders})
}

// getOrder handles GET /api/admin/orders/{id}.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// cancelOrder handles POST /api/admin/orders/{id}/cancel. Stock from the order
// snapshot goes back on the shelf.
func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	actor := "admin"
	if claims := authFromContext(r.Context()); claims != nil && claims.Subject != "" {
		actor = claims.Subject
	}
	order, err := h.orders.CancelOrder(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// updateOrderStatus handles POST /api/admin/orders/{id}/status.
func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	order, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// markOrderPaid handles POST /api/admin/orders/{id}/paid.
func (h *Handler) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.MarkPaid(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, order)
}

// adjustStock handles POST /api/admin/products/{id}/adjust-stock.
func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta         int    `json:"delta"`
		EventType     string `json:"eventType"`
		ReferenceID   string `json:"referenceId"`
		ReferenceType string `json:"referenceType"`
		Notes         string `json:"notes"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EventType == "" {
		req.EventType = string(core.EventAdjust)
	}
	actor := "admin"
	if claims := authFromContext(r.Context()); claims != nil && claims.Subject != "" {
		actor = claims.Subject
	}

	product, err := h.products.AdjustStock(r.Context(), chi.URLParam(r, "id"),
		req.Delta, core.LedgerEventType(req.EventType), req.ReferenceID, req.ReferenceType, req.Notes, actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, product)
}

// ledgerHistory handles GET /api/admin/products/{id}/ledger?limit=.
func (h *Handler) ledgerHistory(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.ledger.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Entries []core.LedgerEntry `json:"entries"`
	}
	if entries == nil {
		entries = []core.LedgerEntry{}
	}
	writeJSON(w, response{Entries: entries})
}

// lowStock handles GET /api/admin/products/low-stock.
func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.LowStock(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Products []core.Product `json:"products"`
	}
	if products == nil {
		products = []core.Product{}
	}
	writeJSON(w, response{Products: products})
}

// listCarts handles GET /api/admin/carts?status=&limit=.
func (h *Handler) listCarts(w http.ResponseWriter, r *http.Request) {
	var status *string
	if s := r.URL.Query().Get("status"); s != "" {
		status = &s
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	carts, err := h.carts.List(r.Context(), status, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	type response struct {
		Carts []core.AbandonedCart `json:"carts"`
	}
	if carts == nil {
		carts = []core.AbandonedCart{}
	}
	writeJSON(w, response{Carts: carts})
}

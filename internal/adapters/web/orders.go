package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"jewelstore/internal/core"
)

type placeOrderRequest struct {
	Items []struct {
		ProductID string `json:"productId"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	SessionID     string       `json:"sessionId"`
	CustomerName  string       `json:"customerName"`
	CustomerEmail string       `json:"customerEmail"`
	CustomerPhone string       `json:"customerPhone"`
	ShippingAddr  core.Address `json:"shippingAddress"`
	PaymentMethod string       `json:"paymentMethod"`
	CouponCode    string       `json:"couponCode"`
}

// placeOrder handles POST /api/orders. The Idempotency-Key header makes retries
// of the same submission safe.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	items := make([]core.OrderItemInput, len(req.Items))
	for i, it := range req.Items {
		items[i] = core.OrderItemInput{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	result, err := h.orders.PlaceOrder(r.Context(), core.PlaceOrderRequest{
		Items:          items,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
		SessionID:      req.SessionID,
		CustomerName:   req.CustomerName,
		CustomerEmail:  req.CustomerEmail,
		CustomerPhone:  req.CustomerPhone,
		ShippingAddr:   req.ShippingAddr,
		PaymentMethod:  req.PaymentMethod,
		CouponCode:     req.CouponCode,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if result.Replayed {
		writeJSON(w, result)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, result)
}

// getOrderByNumber handles GET /api/orders/number/{number} for the customer's
// order confirmation page.
func (h *Handler) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrderByNumber(r.Context(), chi.URLParam(r, "number"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Internal identifiers stay off the public surface.
	order.IdempotencyKey = nil
	order.SessionID = ""
	writeJSON(w, order)
}

// listMyOrders handles GET /api/orders?email= for the customer order history.
func (h *Handler) listMyOrders(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	orders, err := h.orders.ListCustomerOrders(r.Context(), email, 50)
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

// verifyCoupon handles POST /api/coupons/verify. Unlike checkout, this is
// strict: an unusable coupon is an error the shopper should see.
func (h *Handler) verifyCoupon(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code       string          `json:"code"`
		OrderTotal decimal.Decimal `json:"orderTotal"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.coupons.Verify(r.Context(), req.Code, req.OrderTotal)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, result)
}

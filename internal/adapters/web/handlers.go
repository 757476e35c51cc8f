package web

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jewelstore/internal/core"
)

// Handler holds the core services the routes dispatch to.
type Handler struct {
	log          *slog.Logger
	products     *core.ProductService
	reservations *core.ReservationService
	orders       *core.OrderService
	ledger       *core.LedgerService
	coupons      *core.CouponService
	carts        *core.CartService
	jwtSecret    string
}

// Services bundles the core services the web layer dispatches to.
type Services struct {
	Products     *core.ProductService
	Reservations *core.ReservationService
	Orders       *core.OrderService
	Ledger       *core.LedgerService
	Coupons      *core.CouponService
	Carts        *core.CartService
}

// NewHandler creates and wires the chi router with all routes.
func NewHandler(log *slog.Logger, svc Services, allowedOrigins, jwtSecret string, bodyLimit int64) http.Handler {
	h := &Handler{
		log:          log,
		products:     svc.Products,
		reservations: svc.Reservations,
		orders:       svc.Orders,
		ledger:       svc.Ledger,
		coupons:      svc.Coupons,
		carts:        svc.Carts,
		jwtSecret:    jwtSecret,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(CORS(allowedOrigins))

	r.Get("/api/health", h.health)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	// ── Storefront (public) ──────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(RequestBodyLimit(bodyLimit))

		r.Get("/api/products/{id}/availability", h.availability)
		r.Post("/api/products/{id}/reserve", h.reserve)
		r.Delete("/api/products/{id}/reserve", h.release)

		r.Post("/api/orders", h.placeOrder)
		r.Get("/api/orders", h.listMyOrders)
		r.Get("/api/orders/number/{number}", h.getOrderByNumber)
		r.Post("/api/coupons/verify", h.verifyCoupon)

		r.Post("/api/cart/touch", h.touchCart)
		r.Post("/api/cart/recovered", h.cartRecovered)
	})

	// ── Admin (JWT-protected) ────────────────────────────────────────────────
	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Use(RequestBodyLimit(bodyLimit))

		r.Get("/api/admin/orders", h.listOrders)
		r.Get("/api/admin/orders/{id}", h.getOrder)
		r.Post("/api/admin/orders/{id}/cancel", h.cancelOrder)
		r.Post("/api/admin/orders/{id}/status", h.updateOrderStatus)
		r.Post("/api/admin/orders/{id}/paid", h.markOrderPaid)

		r.Post("/api/admin/products/{id}/adjust-stock", h.adjustStock)
		r.Get("/api/admin/products/{id}/ledger", h.ledgerHistory)
		r.Get("/api/admin/products/low-stock", h.lowStock)

		r.Get("/api/admin/carts", h.listCarts)
	})

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Status string `json:"status"`
	}
	writeJSON(w, response{Status: "ok"})
}

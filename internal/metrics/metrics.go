// Package metrics exposes Prometheus counters for the inventory core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ReservationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_reservations_created_total",
		Help: "Stock holds created or extended.",
	})
	ReservationConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_reservation_conflicts_total",
		Help: "Reservation attempts rejected for insufficient availability.",
	})
	ReservationsExpired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_reservations_expired_total",
		Help: "Expired holds removed by the sweep.",
	})
	OrdersPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_orders_placed_total",
		Help: "Orders committed.",
	})
	OrdersReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_orders_replayed_total",
		Help: "Order submissions answered from an existing idempotency key.",
	})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_orders_cancelled_total",
		Help: "Orders cancelled with stock restored.",
	})
	CartRemindersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_cart_reminders_total",
		Help: "Abandoned-cart reminders enqueued.",
	})
	NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_notifications_sent_total",
		Help: "Outbox messages delivered.",
	})
	NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jewelstore_notifications_failed_total",
		Help: "Outbox delivery attempts that failed.",
	})
)

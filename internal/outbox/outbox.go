// Package outbox persists notification sends in the same transaction as the
// business write that triggers them, then delivers asynchronously with a
// bounded retry policy. A failed delivery never rolls back or re-runs the
// originating transaction.
package outbox

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one queued notification.
type Message struct {
	ID        int64
	Kind      string
	Recipient string
	Subject   string
	Body      string
	Status    Status
	Attempts  int
	LastError *string
	CreatedAt time.Time
	SentAt    *time.Time
}

// Message kinds.
const (
	KindOrderConfirmation = "order_confirmation"
	KindCartReminder      = "cart_reminder"
)

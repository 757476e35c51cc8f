package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"jewelstore/internal/metrics"
	"jewelstore/internal/outbox"
)

// CartService tracks carts that have an email attached but no order yet.
// The storefront calls Touch on every cart change once the customer has
// identified themselves; checkout flips the cart to converted.
type CartService struct {
	pool *pgxpool.Pool
}

func NewCartService(pool *pgxpool.Pool) *CartService {
	return &CartService{pool: pool}
}

// Touch upserts the active cart snapshot for an email. A cart that was
// previously recovered or converted starts over as a fresh active cart.
func (s *CartService) Touch(ctx context.Context, email, customerName, sessionID string, items []CartItem) error {
	if email == "" {
		return fmt.Errorf("email is required: %w", ErrValidation)
	}
	if len(items) == 0 {
		// An emptied cart is no longer abandoned.
		_, err := s.pool.Exec(ctx,
			"DELETE FROM abandoned_carts WHERE email = $1 AND status = $2",
			email, CartActive,
		)
		if err != nil {
			return fmt.Errorf("failed to clear cart for %s: %w", email, err)
		}
		return nil
	}

	total := decimal.Zero
	for _, item := range items {
		if item.Quantity < 1 {
			return fmt.Errorf("cart item quantity must be at least 1: %w", ErrValidation)
		}
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("failed to marshal cart items: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO abandoned_carts (email, customer_name, session_id, items, cart_total, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO UPDATE SET
			customer_name = EXCLUDED.customer_name,
			session_id = EXCLUDED.session_id,
			items = EXCLUDED.items,
			cart_total = EXCLUDED.cart_total,
			status = $6,
			reminder_count = 0,
			last_reminder_at = NULL,
			updated_at = NOW()
	`, email, customerName, sessionID, itemsJSON, total, CartActive)
	if err != nil {
		return fmt.Errorf("failed to upsert cart for %s: %w", email, err)
	}
	return nil
}

// MarkRecovered records that the customer came back through a reminder link.
func (s *CartService) MarkRecovered(ctx context.Context, email string) error {
	tag, err := s.pool.Exec(ctx,
		"UPDATE abandoned_carts SET status = $1, updated_at = NOW() WHERE email = $2 AND status = $3",
		CartRecovered, email, CartActive,
	)
	if err != nil {
		return fmt.Errorf("failed to mark cart recovered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active cart for %s: %w", email, ErrNotFound)
	}
	return nil
}

// List returns carts newest first, optionally filtered by status.
func (s *CartService) List(ctx context.Context, status *string, limit int) ([]AbandonedCart, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, email, COALESCE(customer_name, ''), COALESCE(session_id, ''),
		       items, cart_total, reminder_count, last_reminder_at, status, created_at, updated_at
		FROM abandoned_carts`
	args := []any{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY updated_at DESC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}
	defer rows.Close()

	var carts []AbandonedCart
	for rows.Next() {
		var c AbandonedCart
		var itemsJSON []byte
		if err := rows.Scan(&c.ID, &c.Email, &c.CustomerName, &c.SessionID,
			&itemsJSON, &c.CartTotal, &c.ReminderCount, &c.LastReminderAt,
			&c.Status, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		if err := json.Unmarshal(itemsJSON, &c.Items); err != nil {
			return nil, fmt.Errorf("failed to decode cart items: %w", err)
		}
		carts = append(carts, c)
	}
	return carts, rows.Err()
}

// CartReminderSweeper periodically finds active carts that have gone quiet
// and queues reminder emails, up to maxReminders per cart.
type CartReminderSweeper struct {
	log          *slog.Logger
	pool         *pgxpool.Pool
	outbox       *outbox.Store
	quietFor     time.Duration
	maxReminders int
	interval     time.Duration
}

func NewCartReminderSweeper(log *slog.Logger, pool *pgxpool.Pool, ob *outbox.Store,
	quietFor time.Duration, maxReminders int, interval time.Duration) *CartReminderSweeper {
	return &CartReminderSweeper{
		log:          log,
		pool:         pool,
		outbox:       ob,
		quietFor:     quietFor,
		maxReminders: maxReminders,
		interval:     interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *CartReminderSweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.log.Error("cart reminder sweep failed", "error", err)
			} else if n > 0 {
				s.log.Info("cart reminders queued", "count", n)
			}
		}
	}
}

// SweepOnce queues reminders for every due cart and returns how many were
// queued. Carts are claimed with SKIP LOCKED so concurrent sweepers never
// double-remind.
func (s *CartReminderSweeper) SweepOnce(ctx context.Context) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin sweep transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, email, COALESCE(customer_name, ''), items, cart_total, reminder_count
		FROM abandoned_carts
		WHERE status = $1
		  AND reminder_count < $2
		  AND updated_at < NOW() - make_interval(secs => $3)
		  AND (last_reminder_at IS NULL OR last_reminder_at < NOW() - make_interval(secs => $3))
		ORDER BY updated_at
		LIMIT 100
		FOR UPDATE SKIP LOCKED
	`, CartActive, s.maxReminders, s.quietFor.Seconds())
	if err != nil {
		return 0, fmt.Errorf("failed to query due carts: %w", err)
	}

	type dueCart struct {
		id, email, name string
		itemsJSON       []byte
		total           decimal.Decimal
		reminderCount   int
	}
	var due []dueCart
	for rows.Next() {
		var c dueCart
		if err := rows.Scan(&c.id, &c.email, &c.name, &c.itemsJSON, &c.total, &c.reminderCount); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan due cart: %w", err)
		}
		due = append(due, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, c := range due {
		var items []CartItem
		if err := json.Unmarshal(c.itemsJSON, &items); err != nil {
			return 0, fmt.Errorf("failed to decode items for cart %s: %w", c.id, err)
		}
		reminderNumber := c.reminderCount + 1

		subject := "You left something sparkly in your cart"
		if reminderNumber >= s.maxReminders {
			subject = "Last chance: your cart is about to expire"
		}
		body := renderCartReminder(c.name, items, c.total, reminderNumber, s.maxReminders)
		if err := s.outbox.EnqueueTx(ctx, tx, outbox.KindCartReminder, c.email, subject, body); err != nil {
			return 0, err
		}

		// updated_at deliberately untouched: reminders must not reset the
		// abandonment clock.
		_, err := tx.Exec(ctx,
			"UPDATE abandoned_carts SET reminder_count = $1, last_reminder_at = NOW() WHERE id = $2",
			reminderNumber, c.id,
		)
		if err != nil {
			return 0, fmt.Errorf("failed to bump reminder count for cart %s: %w", c.id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit sweep: %w", err)
	}
	metrics.CartRemindersSent.Add(float64(len(due)))
	return len(due), nil
}

package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jewelstore/internal/metrics"
)

// DefaultReservationTTL bounds how long a session may hold stock without
// converting it into an order.
const DefaultReservationTTL = 5 * time.Minute

// ReservationService manages session-scoped stock holds. All availability
// math runs under an exclusive product row lock so it cannot race with a
// concurrent checkout, and every entry path starts with a sweep of expired
// rows.
type ReservationService struct {
	pool *pgxpool.Pool
	ttl  time.Duration
}

func NewReservationService(pool *pgxpool.Pool, ttl time.Duration) *ReservationService {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ReservationService{pool: pool, ttl: ttl}
}

// Reserve places or extends a hold of quantity units on a product for a
// session. A repeat call from the same session pushes the expiry forward and
// replaces the quantity instead of inserting a duplicate row. Returns the
// time the hold expires.
func (s *ReservationService) Reserve(ctx context.Context, productID, sessionID string, quantity int) (time.Time, error) {
	if quantity < 1 {
		return time.Time{}, fmt.Errorf("reservation quantity must be at least 1, got %d: %w", quantity, ErrValidation)
	}
	if sessionID == "" {
		return time.Time{}, fmt.Errorf("session id is required: %w", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lazy sweep: clear every expired hold before computing availability.
	if _, err := sweepExpiredTx(ctx, tx); err != nil {
		return time.Time{}, err
	}

	var stock int
	var status ProductStatus
	err = tx.QueryRow(ctx,
		"SELECT stock_quantity, status FROM products WHERE id = $1 FOR UPDATE",
		productID,
	).Scan(&stock, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("failed to lock product %s: %w", productID, err)
	}
	if status != ProductActive {
		return time.Time{}, fmt.Errorf("product %s is %s: %w", productID, status, ErrConflict)
	}

	expiresAt := time.Now().Add(s.ttl)

	// Availability is stock minus everyone else's live holds. The session's
	// own hold is excluded so a repeat call replaces it rather than paying
	// for it twice, but the replacement quantity still has to fit.
	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM product_reservations
		WHERE product_id = $1 AND session_id <> $2 AND expires_at > NOW()
	`, productID, sessionID).Scan(&reserved)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to sum reservations for product %s: %w", productID, err)
	}

	available := stock - reserved
	if quantity > available {
		metrics.ReservationConflicts.Inc()
		return time.Time{}, &StockConflictError{ProductID: productID, Requested: quantity, Available: available}
	}

	// Same session already holds this product: extend, don't duplicate.
	var existingID string
	err = tx.QueryRow(ctx,
		"SELECT id FROM product_reservations WHERE product_id = $1 AND session_id = $2",
		productID, sessionID,
	).Scan(&existingID)
	switch {
	case err == nil:
		_, err = tx.Exec(ctx,
			"UPDATE product_reservations SET quantity = $1, expires_at = $2 WHERE id = $3",
			quantity, expiresAt, existingID,
		)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to extend reservation: %w", err)
		}
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx, `
			INSERT INTO product_reservations (product_id, session_id, quantity, expires_at)
			VALUES ($1, $2, $3, $4)
		`, productID, sessionID, quantity, expiresAt)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to insert reservation: %w", err)
		}
	default:
		return time.Time{}, fmt.Errorf("failed to look up existing reservation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return time.Time{}, fmt.Errorf("failed to commit reservation: %w", err)
	}
	metrics.ReservationsCreated.Inc()
	return expiresAt, nil
}

// Release drops any hold this session has on the product. Releasing a hold
// that does not exist is a no-op.
func (s *ReservationService) Release(ctx context.Context, productID, sessionID string) error {
	_, err := s.pool.Exec(ctx,
		"DELETE FROM product_reservations WHERE product_id = $1 AND session_id = $2",
		productID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("failed to release reservation: %w", err)
	}
	return nil
}

// CheckAvailability reports stock, active holds, and the difference for one
// product. It sweeps and takes the product lock so the numbers cannot race
// with a concurrent reserve or checkout.
func (s *ReservationService) CheckAvailability(ctx context.Context, productID string) (*Availability, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := sweepExpiredTx(ctx, tx); err != nil {
		return nil, err
	}

	var stock int
	err = tx.QueryRow(ctx,
		"SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE",
		productID,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock product %s: %w", productID, err)
	}

	var reserved int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(quantity), 0)
		FROM product_reservations
		WHERE product_id = $1 AND expires_at > NOW()
	`, productID).Scan(&reserved)
	if err != nil {
		return nil, fmt.Errorf("failed to sum reservations for product %s: %w", productID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit availability check: %w", err)
	}

	available := stock - reserved
	return &Availability{
		StockQuantity: stock,
		Reserved:      reserved,
		Available:     available,
		IsSoldOut:     available == 0,
	}, nil
}

// SweepExpired deletes all expired holds across every product and returns how
// many were removed. The reserve path runs the same statement lazily; this
// entry point exists for the periodic reaper so dashboards reading
// reservation rows directly stay fresh between reserve calls.
func (s *ReservationService) SweepExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM product_reservations WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired reservations: %w", err)
	}
	n := tag.RowsAffected()
	if n > 0 {
		metrics.ReservationsExpired.Add(float64(n))
	}
	return n, nil
}

// RunReaper sweeps expired holds on a fixed interval until ctx is cancelled.
func (s *ReservationService) RunReaper(ctx context.Context, interval time.Duration, log *slog.Logger) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("reservation reaper stopping")
			return
		case <-t.C:
			n, err := s.SweepExpired(ctx)
			if err != nil {
				log.Error("reservation sweep failed", "err", err)
				continue
			}
			if n > 0 {
				log.Info("swept expired reservations", "count", n)
			}
		}
	}
}

func sweepExpiredTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	tag, err := tx.Exec(ctx, "DELETE FROM product_reservations WHERE expires_at < NOW()")
	if err != nil {
		return 0, fmt.Errorf("failed to sweep expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

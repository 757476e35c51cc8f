package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres-backed queue. maxAttempts bounds redelivery: a
// message whose attempt count reaches the cap is parked as failed and needs
// operator action, not an automatic re-run of the order transaction.
type Store struct {
	pool        *pgxpool.Pool
	maxAttempts int
}

func NewStore(pool *pgxpool.Pool, maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Store{pool: pool, maxAttempts: maxAttempts}
}

// EnqueueTx inserts a pending message inside the caller's transaction, so the
// notification commits or rolls back together with the business write.
func (s *Store) EnqueueTx(ctx context.Context, tx pgx.Tx, kind, recipient, subject, body string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notification_outbox (kind, recipient, subject, body, status)
		VALUES ($1, $2, $3, $4, 'pending')
	`, kind, recipient, subject, body)
	if err != nil {
		return fmt.Errorf("failed to enqueue %s notification: %w", kind, err)
	}
	return nil
}

// LockBatch claims up to batchSize pending messages for delivery. Rows are
// taken with SKIP LOCKED so concurrent relays never contend on the same
// message.
func (s *Store) LockBatch(ctx context.Context, batchSize int) ([]Message, error) {
	rows, err := s.pool.Query(ctx, `
		WITH picked AS (
			SELECT id FROM notification_outbox
			WHERE status = 'pending'
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_outbox o
		SET status = 'sending', locked_at = NOW()
		FROM picked
		WHERE o.id = picked.id
		RETURNING o.id, o.kind, o.recipient, o.subject, o.body, o.status, o.attempts, o.last_error, o.created_at, o.sent_at
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to lock outbox batch: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.Kind, &m.Recipient, &m.Subject, &m.Body,
			&m.Status, &m.Attempts, &m.LastError, &m.CreatedAt, &m.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkSent finalizes delivered messages.
func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'sent', sent_at = NOW()
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to mark outbox messages sent: %w", err)
	}
	return nil
}

// RequeueStale returns messages stuck in sending (a relay died mid-batch) to
// pending once their lock is older than olderThan.
func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET status = 'pending', locked_at = NULL
		WHERE status = 'sending' AND locked_at < NOW() - make_interval(secs => $1)
	`, olderThan.Seconds())
	if err != nil {
		return fmt.Errorf("failed to requeue stale outbox messages: %w", err)
	}
	return nil
}

// MarkFailed records a delivery failure. The message goes back to pending for
// another attempt until the cap is hit, then parks as failed.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE notification_outbox
		SET attempts   = attempts + 1,
		    last_error = $2,
		    status     = CASE WHEN attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END
		WHERE id = $1
	`, id, errMsg, s.maxAttempts)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message failed: %w", err)
	}
	return nil
}

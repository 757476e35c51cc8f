package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"jewelstore/internal/outbox"
)

func setupOutboxDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE notification_outbox"); err != nil {
		t.Fatalf("Failed to clean outbox table: %v", err)
	}
	return pool
}

func enqueue(t *testing.T, pool *pgxpool.Pool, store *outbox.Store, recipient string) {
	t.Helper()
	ctx := context.Background()
	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	defer tx.Rollback(ctx)
	if err := store.EnqueueTx(ctx, tx, outbox.KindOrderConfirmation, recipient, "Test", "<p>hello</p>"); err != nil {
		t.Fatalf("EnqueueTx: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}
}

func TestOutboxStore_LockAndSend(t *testing.T) {
	pool := setupOutboxDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := outbox.NewStore(pool, 5)

	enqueue(t, pool, store, "a@example.com")
	enqueue(t, pool, store, "b@example.com")

	msgs, err := store.LockBatch(ctx, 10)
	if err != nil {
		t.Fatalf("LockBatch: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	// A second claim while the batch is locked finds nothing.
	again, err := store.LockBatch(ctx, 10)
	if err != nil {
		t.Fatalf("LockBatch repeat: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected locked messages to be invisible, got %d", len(again))
	}

	if err := store.MarkSent(ctx, []int64{msgs[0].ID, msgs[1].ID}); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	var sent int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notification_outbox WHERE status = 'sent' AND sent_at IS NOT NULL",
	).Scan(&sent); err != nil {
		t.Fatalf("count sent: %v", err)
	}
	if sent != 2 {
		t.Errorf("expected 2 sent, got %d", sent)
	}
}

func TestOutboxStore_EnqueueRollsBackWithTx(t *testing.T) {
	pool := setupOutboxDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := outbox.NewStore(pool, 5)

	tx, err := pool.Begin(ctx)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := store.EnqueueTx(ctx, tx, outbox.KindCartReminder, "gone@example.com", "Test", "body"); err != nil {
		t.Fatalf("EnqueueTx: %v", err)
	}
	tx.Rollback(ctx)

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM notification_outbox").Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Errorf("rolled-back enqueue must leave no row, got %d", count)
	}
}

func TestOutboxStore_FailureRetryAndPark(t *testing.T) {
	pool := setupOutboxDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := outbox.NewStore(pool, 2)
	enqueue(t, pool, store, "flaky@example.com")

	msgs, err := store.LockBatch(ctx, 1)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("LockBatch: %v (%d msgs)", err, len(msgs))
	}
	id := msgs[0].ID

	// First failure: back to pending for another shot.
	if err := store.MarkFailed(ctx, id, "connection refused"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	var status string
	var attempts int
	if err := pool.QueryRow(ctx,
		"SELECT status, attempts FROM notification_outbox WHERE id = $1", id,
	).Scan(&status, &attempts); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Errorf("expected pending/1 after first failure, got %s/%d", status, attempts)
	}

	// Second failure hits the cap and parks the message.
	if _, err := store.LockBatch(ctx, 1); err != nil {
		t.Fatalf("LockBatch: %v", err)
	}
	if err := store.MarkFailed(ctx, id, "connection refused"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := pool.QueryRow(ctx,
		"SELECT status, attempts FROM notification_outbox WHERE id = $1", id,
	).Scan(&status, &attempts); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "failed" || attempts != 2 {
		t.Errorf("expected failed/2 at cap, got %s/%d", status, attempts)
	}
}

func TestOutboxStore_RequeueStale(t *testing.T) {
	pool := setupOutboxDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := outbox.NewStore(pool, 5)
	enqueue(t, pool, store, "stuck@example.com")

	if _, err := store.LockBatch(ctx, 1); err != nil {
		t.Fatalf("LockBatch: %v", err)
	}
	// Simulate a relay that died mid-batch.
	if _, err := pool.Exec(ctx,
		"UPDATE notification_outbox SET locked_at = NOW() - INTERVAL '10 minutes' WHERE status = 'sending'",
	); err != nil {
		t.Fatalf("age lock: %v", err)
	}

	if err := store.RequeueStale(ctx, 2*time.Minute); err != nil {
		t.Fatalf("RequeueStale: %v", err)
	}

	msgs, err := store.LockBatch(ctx, 1)
	if err != nil {
		t.Fatalf("LockBatch after requeue: %v", err)
	}
	if len(msgs) != 1 {
		t.Errorf("expected stale message reclaimable, got %d", len(msgs))
	}
}

// recordingSender captures delivered messages and fails on demand.
type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail bool
}

func (s *recordingSender) Send(_ context.Context, to, _, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("smtp unavailable")
	}
	s.sent = append(s.sent, to)
	return nil
}

func TestRelay_DeliverOnce(t *testing.T) {
	pool := setupOutboxDB(t)
	defer pool.Close()

	ctx := context.Background()
	store := outbox.NewStore(pool, 5)
	sender := &recordingSender{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	relay := outbox.NewRelay(log, store, sender, time.Second, 10)

	enqueue(t, pool, store, "one@example.com")
	enqueue(t, pool, store, "two@example.com")

	if err := relay.DeliverOnce(ctx); err != nil {
		t.Fatalf("DeliverOnce: %v", err)
	}
	if len(sender.sent) != 2 {
		t.Errorf("expected 2 deliveries, got %d", len(sender.sent))
	}

	var pending int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM notification_outbox WHERE status <> 'sent'",
	).Scan(&pending); err != nil {
		t.Fatalf("count: %v", err)
	}
	if pending != 0 {
		t.Errorf("expected all messages sent, %d not sent", pending)
	}

	// Failures stay queued for the next pass.
	sender.fail = true
	enqueue(t, pool, store, "three@example.com")
	if err := relay.DeliverOnce(ctx); err != nil {
		t.Fatalf("DeliverOnce with failure: %v", err)
	}
	var status string
	if err := pool.QueryRow(ctx,
		"SELECT status FROM notification_outbox WHERE recipient = 'three@example.com'",
	).Scan(&status); err != nil {
		t.Fatalf("query: %v", err)
	}
	if status != "pending" {
		t.Errorf("expected failed delivery back to pending, got %s", status)
	}
}

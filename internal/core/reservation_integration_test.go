package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"jewelstore/internal/core"
)

func TestReservation_Lifecycle(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewReservationService(pool, 5*time.Minute)

	t.Run("Reserve_Success", func(t *testing.T) {
		before := time.Now()
		expiresAt, err := svc.Reserve(ctx, prodRing, "sess-a", 2)
		if err != nil {
			t.Fatalf("Reserve: %v", err)
		}
		ttl := expiresAt.Sub(before)
		if ttl < 4*time.Minute+50*time.Second || ttl > 5*time.Minute+10*time.Second {
			t.Errorf("expected expiry about 5 minutes out, got %s", ttl)
		}
	})

	t.Run("Availability_ReflectsHold", func(t *testing.T) {
		avail, err := svc.CheckAvailability(ctx, prodRing)
		if err != nil {
			t.Fatalf("CheckAvailability: %v", err)
		}
		if avail.StockQuantity != 5 {
			t.Errorf("expected stock 5, got %d", avail.StockQuantity)
		}
		if avail.Reserved != 2 {
			t.Errorf("expected reserved 2, got %d", avail.Reserved)
		}
		if avail.Available != 3 {
			t.Errorf("expected available 3, got %d", avail.Available)
		}
		if avail.IsSoldOut {
			t.Error("expected not sold out")
		}
	})

	t.Run("Reserve_SameSessionExtends", func(t *testing.T) {
		// The same session re-reserving replaces the hold rather than stacking.
		if _, err := svc.Reserve(ctx, prodRing, "sess-a", 3); err != nil {
			t.Fatalf("Reserve extend: %v", err)
		}

		var count, quantity int
		err := pool.QueryRow(ctx,
			"SELECT COUNT(*), COALESCE(SUM(quantity), 0) FROM product_reservations WHERE product_id = $1 AND session_id = 'sess-a'",
			prodRing,
		).Scan(&count, &quantity)
		if err != nil {
			t.Fatalf("query reservations: %v", err)
		}
		if count != 1 {
			t.Errorf("expected 1 reservation row, got %d", count)
		}
		if quantity != 3 {
			t.Errorf("expected quantity replaced to 3, got %d", quantity)
		}
	})

	t.Run("Reserve_ExtendOverStockConflicts", func(t *testing.T) {
		// sess-a holds 3 of 5. Its own hold does not count against it on a
		// replace, but the new quantity must still fit in stock.
		_, err := svc.Reserve(ctx, prodRing, "sess-a", 100)
		var stockErr *core.StockConflictError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected StockConflictError, got %v", err)
		}
		if stockErr.Available != 5 {
			t.Errorf("expected 5 available to the holding session, got %d", stockErr.Available)
		}

		// The rejected extend leaves the original hold untouched.
		var quantity int
		if err := pool.QueryRow(ctx,
			"SELECT quantity FROM product_reservations WHERE product_id = $1 AND session_id = 'sess-a'",
			prodRing,
		).Scan(&quantity); err != nil {
			t.Fatalf("query reservation: %v", err)
		}
		if quantity != 3 {
			t.Errorf("expected hold to stay at 3 after rejected extend, got %d", quantity)
		}
	})

	t.Run("Reserve_OtherSessionConflict", func(t *testing.T) {
		// sess-a holds 3 of 5; another session asking for 3 must fail.
		_, err := svc.Reserve(ctx, prodRing, "sess-b", 3)
		var stockErr *core.StockConflictError
		if !errors.As(err, &stockErr) {
			t.Fatalf("expected StockConflictError, got %v", err)
		}
		if stockErr.Available != 2 {
			t.Errorf("expected 2 available in conflict, got %d", stockErr.Available)
		}
		if !errors.Is(err, core.ErrConflict) {
			t.Error("expected StockConflictError to unwrap to ErrConflict")
		}

		// A request within the remainder succeeds.
		if _, err := svc.Reserve(ctx, prodRing, "sess-b", 2); err != nil {
			t.Fatalf("Reserve within remainder: %v", err)
		}
	})

	t.Run("Reserve_UnknownProduct", func(t *testing.T) {
		_, err := svc.Reserve(ctx, "99999999-9999-9999-9999-999999999999", "sess-a", 1)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Reserve_InactiveProduct", func(t *testing.T) {
		_, err := svc.Reserve(ctx, prodInactive, "sess-a", 1)
		if !errors.Is(err, core.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("Reserve_InvalidQuantity", func(t *testing.T) {
		if _, err := svc.Reserve(ctx, prodRing, "sess-a", 0); !errors.Is(err, core.ErrValidation) {
			t.Errorf("expected ErrValidation for quantity 0, got %v", err)
		}
		if _, err := svc.Reserve(ctx, prodRing, "", 1); !errors.Is(err, core.ErrValidation) {
			t.Errorf("expected ErrValidation for empty session, got %v", err)
		}
	})

	t.Run("Release_Idempotent", func(t *testing.T) {
		if err := svc.Release(ctx, prodRing, "sess-b"); err != nil {
			t.Fatalf("Release: %v", err)
		}
		// Second release of the same (now gone) hold still succeeds.
		if err := svc.Release(ctx, prodRing, "sess-b"); err != nil {
			t.Fatalf("Release repeat: %v", err)
		}

		avail, err := svc.CheckAvailability(ctx, prodRing)
		if err != nil {
			t.Fatalf("CheckAvailability: %v", err)
		}
		if avail.Reserved != 3 {
			t.Errorf("expected only sess-a's 3 held after release, got %d", avail.Reserved)
		}
	})
}

func TestReservation_ExpiredHoldsAreSwept(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewReservationService(pool, 5*time.Minute)

	// Plant a hold that is already past its expiry.
	_, err := pool.Exec(ctx, `
		INSERT INTO product_reservations (product_id, session_id, quantity, expires_at)
		VALUES ($1, 'sess-old', 1, NOW() - INTERVAL '1 minute')
	`, prodSolo)
	if err != nil {
		t.Fatalf("seed expired reservation: %v", err)
	}

	// The expired hold must not block a fresh session.
	if _, err := svc.Reserve(ctx, prodSolo, "sess-new", 1); err != nil {
		t.Fatalf("Reserve over expired hold: %v", err)
	}

	var oldCount int
	if err := pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM product_reservations WHERE session_id = 'sess-old'",
	).Scan(&oldCount); err != nil {
		t.Fatalf("count old reservations: %v", err)
	}
	if oldCount != 0 {
		t.Errorf("expected expired hold deleted, found %d rows", oldCount)
	}
}

func TestReservation_SweepExpired(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewReservationService(pool, 5*time.Minute)

	_, err := pool.Exec(ctx, `
		INSERT INTO product_reservations (product_id, session_id, quantity, expires_at) VALUES
		($1, 's1', 1, NOW() - INTERVAL '10 minutes'),
		($1, 's2', 1, NOW() - INTERVAL '5 minutes'),
		($1, 's3', 1, NOW() + INTERVAL '5 minutes')
	`, prodRing)
	if err != nil {
		t.Fatalf("seed reservations: %v", err)
	}

	n, err := svc.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 swept, got %d", n)
	}

	var remaining int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM product_reservations").Scan(&remaining); err != nil {
		t.Fatalf("count reservations: %v", err)
	}
	if remaining != 1 {
		t.Errorf("expected 1 live hold to survive, got %d", remaining)
	}
}

func TestReservation_LastUnitRace(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	ctx := context.Background()
	svc := core.NewReservationService(pool, 5*time.Minute)

	const sessions = 8
	var wg sync.WaitGroup
	errs := make([]error, sessions)

	for i := 0; i < sessions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Reserve(ctx, prodSolo, string(rune('a'+i))+"-race", 1)
		}(i)
	}
	wg.Wait()

	var wins int
	for _, err := range errs {
		if err == nil {
			wins++
		} else if !errors.Is(err, core.ErrConflict) {
			t.Errorf("unexpected error in race: %v", err)
		}
	}
	if wins != 1 {
		t.Errorf("expected exactly 1 session to win the last unit, got %d", wins)
	}
}

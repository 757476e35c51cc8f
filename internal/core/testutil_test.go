package core_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

// Fixed product IDs seeded by setupTestDB.
const (
	prodRing     = "11111111-1111-1111-1111-111111111111" // stock 5, price 2500
	prodNecklace = "22222222-2222-2222-2222-222222222222" // stock 3, price 6000
	prodInactive = "33333333-3333-3333-3333-333333333333" // inactive
	prodSolo     = "44444444-4444-4444-4444-444444444444" // stock 1, one-of-a-kind
)

func setupTestDB(t *testing.T) *pgxpool.Pool {
	_ = godotenv.Load("../../.env")

	// Use a dedicated TEST database to avoid wiping the live app database.
	// Set TEST_DATABASE_URL in your .env or environment to run integration tests.
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set — skipping integration test to protect live database")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	_, err = pool.Exec(ctx, `
		TRUNCATE TABLE product_reservations, inventory_ledger, orders, coupons, abandoned_carts, notification_outbox, products CASCADE;

		INSERT INTO products (id, sku, name, category, status, selling_price, total_cost, stock_quantity, low_stock_threshold, is_unique_item) VALUES
		('11111111-1111-1111-1111-111111111111', 'RING-001', 'Gold Ring', 'rings', 'active', 2500, 1200, 5, 2, false),
		('22222222-2222-2222-2222-222222222222', 'NECK-001', 'Diamond Necklace', 'necklaces', 'active', 6000, 3000, 3, 2, false),
		('33333333-3333-3333-3333-333333333333', 'BANG-001', 'Silver Bangle', 'bangles', 'inactive', 1500, 700, 2, 2, false),
		('44444444-4444-4444-4444-444444444444', 'SOLI-001', 'Solitaire Pendant', 'pendants', 'active', 9000, 4000, 1, 1, true);

		INSERT INTO coupons (code, description, type, value, min_order_value, max_discount, usage_limit, is_active) VALUES
		('WELCOME10', '10 percent off for new customers', 'percent', 10, 1000, 500, NULL, true),
		('FLAT500', 'Flat 500 off', 'fixed', 500, 2000, NULL, 100, true),
		('EXPIRED', 'Retired promo', 'fixed', 100, 0, NULL, NULL, false);
	`)
	if err != nil {
		t.Fatalf("Failed to seed test database: %v", err)
	}

	return pool
}

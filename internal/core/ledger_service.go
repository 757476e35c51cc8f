package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerService owns the append-only stock audit trail. Entries are never
// updated or deleted, and stock reads never derive from the ledger: the
// products.stock_quantity column is authoritative, the ledger is write-only
// audit.
type LedgerService struct {
	pool *pgxpool.Pool
}

func NewLedgerService(pool *pgxpool.Pool) *LedgerService {
	return &LedgerService{pool: pool}
}

// AppendInTx writes one immutable ledger row inside the caller's transaction.
// The running balance is read from the product row after the caller has
// applied its stock mutation, so the ledger and the mutable column cannot
// disagree at commit time for this write.
func (l *LedgerService) AppendInTx(ctx context.Context, tx pgx.Tx, productID string,
	change int, eventType LedgerEventType, refID, refType, notes, createdBy string) error {

	var sku, name string
	var balance int
	err := tx.QueryRow(ctx,
		"SELECT sku, name, stock_quantity FROM products WHERE id = $1",
		productID,
	).Scan(&sku, &name, &balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("product %s: %w", productID, ErrNotFound)
		}
		return fmt.Errorf("failed to read balance for ledger entry: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO inventory_ledger (product_id, sku, product_name, event_type, quantity_change, running_balance, reference_id, reference_type, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, productID, sku, name, string(eventType), change, balance, refID, refType, notes, createdBy)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// History returns the most recent ledger entries for a product, newest first.
func (l *LedgerService) History(ctx context.Context, productID string, limit int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, product_id, sku, product_name, event_type, quantity_change, running_balance,
		       COALESCE(reference_id, ''), COALESCE(reference_type, ''), COALESCE(notes, ''), COALESCE(created_by, ''), created_at
		FROM inventory_ledger
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger history: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(
			&e.ID, &e.ProductID, &e.SKU, &e.ProductName, &e.EventType,
			&e.QuantityChange, &e.RunningBalance,
			&e.ReferenceID, &e.ReferenceType, &e.Notes, &e.CreatedBy, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumChanges returns the sum of all signed quantity changes for a product.
// Used by audit checks: the sum must equal current stock minus seeded stock.
func (l *LedgerService) SumChanges(ctx context.Context, productID string) (int, error) {
	var sum int
	err := l.pool.QueryRow(ctx,
		"SELECT COALESCE(SUM(quantity_change), 0) FROM inventory_ledger WHERE product_id = $1",
		productID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum ledger changes: %w", err)
	}
	return sum, nil
}

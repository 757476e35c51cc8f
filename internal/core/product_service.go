package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgxQuerier is satisfied by both *pgxpool.Pool and pgx.Tx, enabling shared
// query helpers.
type pgxQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProductService is the catalog surface this core consumes: stock, status,
// price, and cost reads plus the manual stock-adjustment path. Catalog field
// editing and CSV import live outside this module.
type ProductService struct {
	pool   *pgxpool.Pool
	ledger *LedgerService
}

func NewProductService(pool *pgxpool.Pool, ledger *LedgerService) *ProductService {
	return &ProductService{pool: pool, ledger: ledger}
}

const productColumns = `
	id, sku, name, COALESCE(description, ''), category, status, COALESCE(image, ''),
	COALESCE(metal, ''), COALESCE(purity, ''), selling_price, currency, COALESCE(total_cost, 0),
	stock_quantity, low_stock_threshold, is_unique_item, tax_rate, created_at, updated_at`

func scanProduct(row pgx.Row, p *Product) error {
	return row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.Description, &p.Category, &p.Status, &p.Image,
		&p.Metal, &p.Purity, &p.SellingPrice, &p.Currency, &p.TotalCost,
		&p.StockQuantity, &p.LowStockThreshold, &p.IsUniqueItem, &p.TaxRate,
		&p.CreatedAt, &p.UpdatedAt,
	)
}

func (s *ProductService) Get(ctx context.Context, id string) (*Product, error) {
	var p Product
	err := scanProduct(s.pool.QueryRow(ctx,
		"SELECT"+productColumns+" FROM products WHERE id = $1", id), &p)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch product %s: %w", id, err)
	}
	return &p, nil
}

// adjustableEvents are the event types the manual adjustment path accepts.
// Sales flow through the order coordinator only.
var adjustableEvents = map[LedgerEventType]bool{
	EventReceive:     true,
	EventAdjust:      true,
	EventReturn:      true,
	EventTransferIn:  true,
	EventTransferOut: true,
}

// AdjustStock applies a signed stock delta under the product row lock and
// appends the matching ledger entry in the same transaction. A delta that
// would push stock below zero is rejected.
func (s *ProductService) AdjustStock(ctx context.Context, id string, delta int,
	eventType LedgerEventType, refID, refType, notes, actor string) (*Product, error) {

	if delta == 0 {
		return nil, fmt.Errorf("stock adjustment delta must be non-zero: %w", ErrValidation)
	}
	if !adjustableEvents[eventType] {
		return nil, fmt.Errorf("event type %q not permitted for manual adjustment: %w", eventType, ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var stock int
	err = tx.QueryRow(ctx,
		"SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE", id,
	).Scan(&stock)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock product %s: %w", id, err)
	}

	if stock+delta < 0 {
		return nil, &StockConflictError{ProductID: id, Requested: -delta, Available: stock}
	}

	_, err = tx.Exec(ctx,
		"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
		delta, id,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to adjust stock for product %s: %w", id, err)
	}

	if err := s.ledger.AppendInTx(ctx, tx, id, delta, eventType, refID, refType, notes, actor); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit stock adjustment: %w", err)
	}
	return s.Get(ctx, id)
}

// LowStock returns active products at or below their restock threshold.
func (s *ProductService) LowStock(ctx context.Context) ([]Product, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT"+productColumns+` FROM products
		WHERE status = 'active' AND stock_quantity <= low_stock_threshold
		ORDER BY stock_quantity, sku`)
	if err != nil {
		return nil, fmt.Errorf("failed to query low stock products: %w", err)
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := scanProduct(rows, &p); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

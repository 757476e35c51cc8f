package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"jewelstore/internal/metrics"
	"jewelstore/internal/outbox"
)

// Pricing holds the flat checkout rules: orders above FreeShippingOver ship
// free, everything else pays ShippingFee; tax is a flat percentage of the
// discounted subtotal.
type Pricing struct {
	TaxRatePercent   decimal.Decimal
	FreeShippingOver decimal.Decimal
	ShippingFee      decimal.Decimal
}

// OrderItemInput is one requested line of a checkout.
type OrderItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// PlaceOrderRequest carries everything a checkout submission needs.
type PlaceOrderRequest struct {
	Items          []OrderItemInput
	IdempotencyKey string
	SessionID      string
	CustomerName   string
	CustomerEmail  string
	CustomerPhone  string
	ShippingAddr   Address
	PaymentMethod  string
	CouponCode     string
}

// PlaceOrderResult identifies the committed (or replayed) order.
type PlaceOrderResult struct {
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Replayed    bool   `json:"-"`
}

// OrderService is the order transaction coordinator: it validates, locks,
// decrements, records ledger entries, and persists an order as one atomic
// unit, and owns idempotent replay.
type OrderService struct {
	pool    *pgxpool.Pool
	ledger  *LedgerService
	coupons *CouponService
	outbox  *outbox.Store
	pricing Pricing
}

func NewOrderService(pool *pgxpool.Pool, ledger *LedgerService, coupons *CouponService, ob *outbox.Store, pricing Pricing) *OrderService {
	return &OrderService{pool: pool, ledger: ledger, coupons: coupons, outbox: ob, pricing: pricing}
}

// PlaceOrder runs the whole checkout as one transaction. Products are locked
// in ascending id order, which fixes a global lock-acquisition order across
// all concurrent multi-item checkouts and prevents deadlock between them.
// A submission that repeats an existing idempotency key returns the original
// order's identifiers with no new mutation.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	if len(req.Items) == 0 {
		return nil, fmt.Errorf("order must have at least one item: %w", ErrValidation)
	}
	for _, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("item quantity must be at least 1, got %d for product %s: %w",
				item.Quantity, item.ProductID, ErrValidation)
		}
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("session id is required: %w", ErrValidation)
	}
	if req.CustomerEmail == "" {
		return nil, fmt.Errorf("customer email is required: %w", ErrValidation)
	}

	result, err := s.placeOrderTx(ctx, req)
	if err != nil {
		// A concurrent submission with the same idempotency key may commit
		// first; answer with its identifiers instead of surfacing the
		// unique-constraint failure.
		if req.IdempotencyKey != "" && isUniqueViolation(err) {
			if existing, lookupErr := s.findByIdempotencyKey(ctx, req.IdempotencyKey); lookupErr == nil && existing != nil {
				metrics.OrdersReplayed.Inc()
				return existing, nil
			}
		}
		return nil, err
	}
	if result.Replayed {
		metrics.OrdersReplayed.Inc()
	} else {
		metrics.OrdersPlaced.Inc()
	}
	return result, nil
}

func (s *OrderService) placeOrderTx(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Idempotent replay short-circuits before any mutation.
	if req.IdempotencyKey != "" {
		var id, number string
		err := tx.QueryRow(ctx,
			"SELECT id, order_number FROM orders WHERE idempotency_key = $1",
			req.IdempotencyKey,
		).Scan(&id, &number)
		if err == nil {
			return &PlaceOrderResult{OrderID: id, OrderNumber: number, Replayed: true}, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to check idempotency key: %w", err)
		}
	}

	// Global lock order: ascending product id.
	items := make([]OrderItemInput, len(req.Items))
	copy(items, req.Items)
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	orderID := uuid.NewString()
	u := uuid.New()
	orderNumber := fmt.Sprintf("ORD-%X", u[:4])

	var subtotal, totalCost decimal.Decimal
	snapshot := make([]OrderItem, 0, len(items))

	for _, item := range items {
		var (
			name, image, category string
			status                ProductStatus
			stock                 int
			price, unitCost       decimal.Decimal
		)
		err := tx.QueryRow(ctx, `
			SELECT name, status, stock_quantity, selling_price, COALESCE(total_cost, 0), COALESCE(image, ''), category
			FROM products WHERE id = $1 FOR UPDATE
		`, item.ProductID).Scan(&name, &status, &stock, &price, &unitCost, &image, &category)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to lock product %s: %w", item.ProductID, err)
		}
		if status != ProductActive {
			return nil, fmt.Errorf("product %s is %s: %w", name, status, ErrConflict)
		}
		if stock < item.Quantity {
			return nil, &StockConflictError{ProductID: item.ProductID, Requested: item.Quantity, Available: stock}
		}

		// Stock held by another session is not for sale; this session's own
		// hold counts as already theirs and is cleared below.
		var heldByOther bool
		err = tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM product_reservations
				WHERE product_id = $1 AND session_id <> $2 AND expires_at > NOW()
			)
		`, item.ProductID, req.SessionID).Scan(&heldByOther)
		if err != nil {
			return nil, fmt.Errorf("failed to check reservations for product %s: %w", item.ProductID, err)
		}
		if heldByOther {
			return nil, fmt.Errorf("product %s is reserved by another session: %w", name, ErrConflict)
		}

		subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		totalCost = totalCost.Add(unitCost.Mul(decimal.NewFromInt(int64(item.Quantity))))
		snapshot = append(snapshot, OrderItem{
			ProductID: item.ProductID,
			Name:      name,
			Quantity:  item.Quantity,
			UnitPrice: price,
			UnitCost:  unitCost,
			Image:     image,
			Category:  category,
		})

		_, err = tx.Exec(ctx,
			"UPDATE products SET stock_quantity = stock_quantity - $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to decrement stock for product %s: %w", item.ProductID, err)
		}

		_, err = tx.Exec(ctx,
			"DELETE FROM product_reservations WHERE product_id = $1 AND session_id = $2",
			item.ProductID, req.SessionID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to clear reservation for product %s: %w", item.ProductID, err)
		}

		if err := s.ledger.AppendInTx(ctx, tx, item.ProductID, -item.Quantity, EventSale,
			orderNumber, "order", fmt.Sprintf("Sold %d × %s", item.Quantity, name), req.CustomerEmail); err != nil {
			return nil, err
		}
	}

	var couponCode *string
	discount := decimal.Zero
	if req.CouponCode != "" {
		applied, d, err := s.coupons.ApplyTx(ctx, tx, req.CouponCode, subtotal)
		if err != nil {
			return nil, err
		}
		if applied != "" {
			couponCode = &applied
			discount = d
		}
	}

	shipping := s.pricing.ShippingFee
	if subtotal.GreaterThan(s.pricing.FreeShippingOver) {
		shipping = decimal.Zero
	}
	tax := subtotal.Sub(discount).Mul(s.pricing.TaxRatePercent).Div(decimal.NewFromInt(100))
	grandTotal := subtotal.Sub(discount).Add(shipping)
	grossProfit := grandTotal.Sub(totalCost)

	itemsJSON, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order items: %w", err)
	}
	addrJSON, err := json.Marshal(req.ShippingAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shipping address: %w", err)
	}

	var idemKey *string
	if req.IdempotencyKey != "" {
		idemKey = &req.IdempotencyKey
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, idempotency_key, session_id,
			customer_name, customer_email, customer_phone,
			status, payment_status, payment_method, items,
			subtotal, discount_total, tax_total, shipping_total, grand_total,
			coupon_code, coupon_discount, total_cost, gross_profit, shipping_address)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`, orderID, orderNumber, idemKey, req.SessionID,
		req.CustomerName, req.CustomerEmail, req.CustomerPhone,
		OrderPending, PaymentPending, req.PaymentMethod, itemsJSON,
		subtotal, discount, tax, shipping, grandTotal,
		couponCode, discount, totalCost, grossProfit, addrJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to insert order: %w", err)
	}

	// Checkout converts any active abandoned cart for this customer.
	_, err = tx.Exec(ctx,
		"UPDATE abandoned_carts SET status = $1, updated_at = NOW() WHERE email = $2 AND status = $3",
		CartConverted, req.CustomerEmail, CartActive,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to mark cart converted: %w", err)
	}

	// The confirmation rides in the same commit; the relay delivers it after.
	body := renderOrderConfirmation(req.CustomerName, orderNumber, snapshot, subtotal, discount, shipping, grandTotal)
	if err := s.outbox.EnqueueTx(ctx, tx, outbox.KindOrderConfirmation, req.CustomerEmail,
		fmt.Sprintf("Order Confirmation #%s", orderNumber), body); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}
	return &PlaceOrderResult{OrderID: orderID, OrderNumber: orderNumber}, nil
}

// cancellableStatuses are the order states cancellation may start from.
var cancellableStatuses = map[string]bool{
	OrderPending:    true,
	OrderConfirmed:  true,
	OrderProcessing: true,
}

// CancelOrder restores each snapshot item's stock and writes the matching
// return ledger entries in one transaction, then marks the order cancelled.
func (s *OrderService) CancelOrder(ctx context.Context, orderID, actor string) (*Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var status, orderNumber string
	var itemsJSON []byte
	err = tx.QueryRow(ctx,
		"SELECT status, order_number, items FROM orders WHERE id = $1 FOR UPDATE",
		orderID,
	).Scan(&status, &orderNumber, &itemsJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}
	if !cancellableStatuses[status] {
		return nil, fmt.Errorf("order %s cannot be cancelled from status %s: %w", orderNumber, status, ErrValidation)
	}

	var items []OrderItem
	if err := json.Unmarshal(itemsJSON, &items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

	for _, item := range items {
		var stock int
		err := tx.QueryRow(ctx,
			"SELECT stock_quantity FROM products WHERE id = $1 FOR UPDATE",
			item.ProductID,
		).Scan(&stock)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("product %s from order snapshot: %w", item.ProductID, ErrNotFound)
			}
			return nil, fmt.Errorf("failed to lock product %s: %w", item.ProductID, err)
		}

		_, err = tx.Exec(ctx,
			"UPDATE products SET stock_quantity = stock_quantity + $1, updated_at = NOW() WHERE id = $2",
			item.Quantity, item.ProductID,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to restore stock for product %s: %w", item.ProductID, err)
		}

		if err := s.ledger.AppendInTx(ctx, tx, item.ProductID, item.Quantity, EventReturn,
			orderNumber, "order", fmt.Sprintf("Order %s cancelled, %d × %s restored", orderNumber, item.Quantity, item.Name), actor); err != nil {
			return nil, err
		}
	}

	_, err = tx.Exec(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		OrderCancelled, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	metrics.OrdersCancelled.Inc()
	return s.GetOrder(ctx, orderID)
}

// statusTransitions defines the forward path an order may take through the
// admin status update. Cancellation goes through CancelOrder so stock is
// restored.
var statusTransitions = map[string][]string{
	OrderPending:    {OrderConfirmed, OrderProcessing, OrderShipped},
	OrderConfirmed:  {OrderProcessing, OrderShipped},
	OrderProcessing: {OrderShipped},
	OrderShipped:    {OrderDelivered},
}

// UpdateStatus moves an order along the fulfillment path.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, newStatus string) (*Order, error) {
	if newStatus == OrderCancelled {
		return nil, fmt.Errorf("use the cancel operation to cancel an order: %w", ErrValidation)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		"SELECT status FROM orders WHERE id = $1 FOR UPDATE", orderID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock order %s: %w", orderID, err)
	}

	allowed := false
	for _, next := range statusTransitions[current] {
		if next == newStatus {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("order cannot move from %s to %s: %w", current, newStatus, ErrValidation)
	}

	_, err = tx.Exec(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2",
		newStatus, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return s.GetOrder(ctx, orderID)
}

// MarkPaid records payment against a non-cancelled order.
func (s *OrderService) MarkPaid(ctx context.Context, orderID string) (*Order, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE orders SET payment_status = $1, updated_at = NOW()
		WHERE id = $2 AND status <> $3
	`, PaymentPaid, orderID, OrderCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("cancelled order cannot be marked paid: %w", ErrValidation)
	}
	return s.GetOrder(ctx, orderID)
}

const orderColumns = `
	id, order_number, idempotency_key, COALESCE(session_id, ''),
	COALESCE(customer_name, ''), COALESCE(customer_email, ''), COALESCE(customer_phone, ''),
	status, payment_status, COALESCE(payment_method, ''), items,
	subtotal, discount_total, tax_total, shipping_total, grand_total,
	coupon_code, coupon_discount, total_cost, gross_profit, shipping_address,
	created_at, updated_at`

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	var itemsJSON, addrJSON []byte
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.IdempotencyKey, &o.SessionID,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &itemsJSON,
		&o.Subtotal, &o.DiscountTotal, &o.TaxTotal, &o.ShippingTotal, &o.GrandTotal,
		&o.CouponCode, &o.CouponDiscount, &o.TotalCost, &o.GrossProfit, &addrJSON,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode order items: %w", err)
	}
	if len(addrJSON) > 0 {
		if err := json.Unmarshal(addrJSON, &o.ShippingAddr); err != nil {
			return nil, fmt.Errorf("failed to decode shipping address: %w", err)
		}
	}
	return &o, nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		"SELECT"+orderColumns+" FROM orders WHERE id = $1", orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderID, err)
	}
	return o, nil
}

func (s *OrderService) GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error) {
	o, err := scanOrder(s.pool.QueryRow(ctx,
		"SELECT"+orderColumns+" FROM orders WHERE order_number = $1", orderNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderNumber, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch order %s: %w", orderNumber, err)
	}
	return o, nil
}

// ListOrders returns orders newest first, optionally filtered by status.
func (s *OrderService) ListOrders(ctx context.Context, status *string, limit int) ([]Order, error) {
	if limit <= 0 {
		limit = 50
	}
	query := "SELECT" + orderColumns + " FROM orders"
	args := []any{}
	if status != nil {
		query += " WHERE status = $1"
		args = append(args, *status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

// ListCustomerOrders returns a customer's orders newest first, for the
// storefront's order history view.
func (s *OrderService) ListCustomerOrders(ctx context.Context, email string, limit int) ([]Order, error) {
	if email == "" {
		return nil, fmt.Errorf("email is required: %w", ErrValidation)
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		"SELECT"+orderColumns+" FROM orders WHERE customer_email = $1 ORDER BY created_at DESC LIMIT $2",
		email, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query customer orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		o.IdempotencyKey = nil
		o.SessionID = ""
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, key string) (*PlaceOrderResult, error) {
	var id, number string
	err := s.pool.QueryRow(ctx,
		"SELECT id, order_number FROM orders WHERE idempotency_key = $1", key,
	).Scan(&id, &number)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &PlaceOrderResult{OrderID: id, OrderNumber: number, Replayed: true}, nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// failure. The only unique key a checkout insert can trip is the idempotency
// one.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

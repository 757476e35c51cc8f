package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// CouponService owns the read/validate/increment contract consumed by
// checkout. Coupon CRUD belongs to the admin surface, not here.
type CouponService struct {
	pool *pgxpool.Pool
}

func NewCouponService(pool *pgxpool.Pool) *CouponService {
	return &CouponService{pool: pool}
}

// CouponDiscount is the result of verifying a code against an order total.
type CouponDiscount struct {
	Code           string          `json:"code"`
	Type           string          `json:"type"`
	Value          decimal.Decimal `json:"value"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Description    string          `json:"description"`
}

// Verify checks a code against an order total and returns the discount it
// would grant. Unknown or inactive codes are NotFound; an unmet minimum is a
// Validation failure so the storefront can show the threshold.
func (s *CouponService) Verify(ctx context.Context, code string, orderTotal decimal.Decimal) (*CouponDiscount, error) {
	c, err := s.fetch(ctx, s.pool, code)
	if err != nil {
		return nil, err
	}
	if c.MinOrderValue.GreaterThan(orderTotal) {
		return nil, fmt.Errorf("minimum order value of %s required for coupon %s: %w",
			c.MinOrderValue.StringFixed(2), c.Code, ErrValidation)
	}
	return &CouponDiscount{
		Code:           c.Code,
		Type:           c.Type,
		Value:          c.Value,
		DiscountAmount: ComputeDiscount(c.Type, c.Value, c.MaxDiscount, orderTotal),
		Description:    c.Description,
	}, nil
}

// ApplyTx is the checkout-time variant: it runs inside the order transaction
// and is lenient: a missing, inactive, or ineligible code yields a zero
// discount rather than failing the order. When the discount applies, the
// usage counter is incremented in the same transaction.
func (s *CouponService) ApplyTx(ctx context.Context, tx pgx.Tx, code string, subtotal decimal.Decimal) (appliedCode string, discount decimal.Decimal, err error) {
	c, err := s.fetch(ctx, tx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", decimal.Zero, nil
		}
		return "", decimal.Zero, err
	}
	if c.MinOrderValue.GreaterThan(subtotal) {
		return "", decimal.Zero, nil
	}
	if c.UsageLimit != nil && c.UsageCount >= *c.UsageLimit {
		return "", decimal.Zero, nil
	}

	discount = ComputeDiscount(c.Type, c.Value, c.MaxDiscount, subtotal)
	if _, err := tx.Exec(ctx, "UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1", c.ID); err != nil {
		return "", decimal.Zero, fmt.Errorf("failed to increment coupon usage: %w", err)
	}
	return c.Code, discount, nil
}

// ComputeDiscount applies the coupon rule to an order total: percent values
// are capped at maxDiscount when set, and every discount is capped at the
// total itself.
func ComputeDiscount(couponType string, value decimal.Decimal, maxDiscount decimal.NullDecimal, orderTotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	if couponType == CouponPercent {
		discount = orderTotal.Mul(value).Div(decimal.NewFromInt(100))
		if maxDiscount.Valid && discount.GreaterThan(maxDiscount.Decimal) {
			discount = maxDiscount.Decimal
		}
	} else {
		discount = value
	}
	if discount.GreaterThan(orderTotal) {
		discount = orderTotal
	}
	return discount
}

func (s *CouponService) fetch(ctx context.Context, q pgxQuerier, code string) (*Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	var c Coupon
	err := q.QueryRow(ctx, `
		SELECT id, code, COALESCE(description, ''), type, value, min_order_value, max_discount, usage_limit, usage_count, is_active, created_at
		FROM coupons
		WHERE code = $1 AND is_active = true
	`, code).Scan(
		&c.ID, &c.Code, &c.Description, &c.Type, &c.Value, &c.MinOrderValue,
		&c.MaxDiscount, &c.UsageLimit, &c.UsageCount, &c.IsActive, &c.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("coupon %s: %w", code, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to fetch coupon %s: %w", code, err)
	}
	return &c, nil
}

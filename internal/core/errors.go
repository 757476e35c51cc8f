package core

import (
	"errors"
	"fmt"
)

// Error kinds. Services wrap these with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is while keeping a readable message.
var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation failed")
)

// StockConflictError reports how many units remain available when a
// reservation or checkout cannot be satisfied. It unwraps to ErrConflict.
type StockConflictError struct {
	ProductID string
	Requested int
	Available int
}

func (e *StockConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

func (e *StockConflictError) Unwrap() error { return ErrConflict }

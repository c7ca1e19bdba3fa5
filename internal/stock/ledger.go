// Package stock holds the stock ledger documents and the conditional
// mutator used to reserve and release units against them.
package stock

import (
	"context"
	"errors"
)

var (
	// ErrNoMatch is returned by Reserve when the precondition does not hold:
	// unknown product, not enough total stock, or not enough stock on the
	// requested option. It is the out-of-stock signal, not a failure.
	ErrNoMatch = errors.New("stock: no ledger document matched the reservation")

	ErrNotFound = errors.New("stock: product not found")

	// ErrOptionNotFound is returned by Release when the product exists but
	// no longer has the named option. Nothing is applied.
	ErrOptionNotFound = errors.New("stock: variant option not found")
)

// Reservation is one conditional decrement request. Variant is the option
// name, empty for products sold without variants.
type Reservation struct {
	ProductID string `json:"productId"`
	Variant   string `json:"variant,omitempty"`
	Quantity  int    `json:"quantity"`
}

// Ledger is a stock store offering single-document atomic updates.
type Ledger interface {
	// Reserve decrements total stock (and the named option's stock) by
	// Quantity iff every counter involved is >= Quantity. The check and the
	// decrement happen in one atomic operation on the product document.
	Reserve(ctx context.Context, r Reservation) (*Product, error)
	// Release is the inverse of a successful Reserve. It touches neither
	// counter when the named option is gone.
	Release(ctx context.Context, r Reservation) error

	Get(ctx context.Context, productID string) (*Product, error)
	Put(ctx context.Context, p Product) error
}

// BatchReserver is implemented by ledgers that can apply a whole list of
// reservations in one multi-document transaction. On ErrNoMatch the returned
// index names the first reservation that could not be satisfied and nothing
// has been applied.
type BatchReserver interface {
	ReserveBatch(ctx context.Context, rs []Reservation) (int, error)
}

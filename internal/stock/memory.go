package stock

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps products in process memory. The mutex is the
// single-document critical section that makes check-and-decrement atomic.
type MemoryLedger struct {
	mu       sync.Mutex
	products map[string]*Product
	now      func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		products: make(map[string]*Product),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *MemoryLedger) Reserve(ctx context.Context, r Reservation) (*Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.products[r.ProductID]
	if !ok || r.Quantity <= 0 || p.Stock < r.Quantity {
		return nil, ErrNoMatch
	}
	var opt *VariantOption
	if r.Variant != "" {
		opt = p.Option(r.Variant)
		if opt == nil || opt.Stock < r.Quantity {
			return nil, ErrNoMatch
		}
	}

	p.Stock -= r.Quantity
	if opt != nil {
		opt.Stock -= r.Quantity
	}
	p.UpdatedAt = l.now()
	out := p.Clone()
	return &out, nil
}

func (l *MemoryLedger) Release(ctx context.Context, r Reservation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.products[r.ProductID]
	if !ok {
		return ErrNotFound
	}
	var opt *VariantOption
	if r.Variant != "" {
		if opt = p.Option(r.Variant); opt == nil {
			return ErrOptionNotFound
		}
	}
	p.Stock += r.Quantity
	if opt != nil {
		opt.Stock += r.Quantity
	}
	p.UpdatedAt = l.now()
	return nil
}

func (l *MemoryLedger) Get(ctx context.Context, productID string) (*Product, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.products[productID]
	if !ok {
		return nil, ErrNotFound
	}
	out := p.Clone()
	return &out, nil
}

func (l *MemoryLedger) Put(ctx context.Context, p Product) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c := p.Clone()
	c.UpdatedAt = l.now()

	l.mu.Lock()
	l.products[p.ID] = &c
	l.mu.Unlock()
	return nil
}

// Seed allows tests or bootstrap code to populate the ledger directly. It
// stops at the first product that fails validation.
func (l *MemoryLedger) Seed(products ...Product) error {
	for _, p := range products {
		if err := l.Put(context.Background(), p); err != nil {
			return err
		}
	}
	return nil
}

package stock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shoe(total, size42 int) Product {
	return Product{
		ID:    "P",
		Name:  "Runner",
		Stock: total,
		Variants: []VariantGroup{{
			Name: "Size",
			Options: []VariantOption{
				{Name: "41", Price: decimal.NewFromInt(500000), Stock: 2, SKU: "RUN-41"},
				{Name: "42", Price: decimal.NewFromInt(500000), Stock: size42, SKU: "RUN-42"},
			},
		}},
	}
}

func TestMemoryLedger_ReserveVariant(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(shoe(5, 3)))

	p, err := l.Reserve(context.Background(), Reservation{ProductID: "P", Variant: "42", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, 1, p.Option("42").Stock)
	assert.Equal(t, 2, p.Option("41").Stock)
}

func TestMemoryLedger_ReserveNoMatch(t *testing.T) {
	tests := []struct {
		name string
		r    Reservation
	}{
		{"unknown product", Reservation{ProductID: "nope", Quantity: 1}},
		{"total exhausted", Reservation{ProductID: "P", Quantity: 6}},
		{"option exhausted", Reservation{ProductID: "P", Variant: "42", Quantity: 4}},
		{"unknown option", Reservation{ProductID: "P", Variant: "44", Quantity: 1}},
		{"zero quantity", Reservation{ProductID: "P", Quantity: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewMemoryLedger()
			require.NoError(t, l.Seed(shoe(5, 3)))

			_, err := l.Reserve(context.Background(), tt.r)
			assert.ErrorIs(t, err, ErrNoMatch)

			p, err := l.Get(context.Background(), "P")
			require.NoError(t, err)
			assert.Equal(t, 5, p.Stock)
			assert.Equal(t, 3, p.Option("42").Stock)
		})
	}
}

func TestMemoryLedger_ReleaseRestoresExactly(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(shoe(5, 3)))
	ctx := context.Background()
	r := Reservation{ProductID: "P", Variant: "42", Quantity: 2}

	_, err := l.Reserve(ctx, r)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, r))

	p, err := l.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 3, p.Option("42").Stock)
}

func TestMemoryLedger_ReleaseUnknownProduct(t *testing.T) {
	l := NewMemoryLedger()
	err := l.Release(context.Background(), Reservation{ProductID: "ghost", Quantity: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedger_ReleaseMissingOptionTouchesNothing(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(shoe(5, 3)))
	ctx := context.Background()

	err := l.Release(ctx, Reservation{ProductID: "P", Variant: "44", Quantity: 2})
	assert.ErrorIs(t, err, ErrOptionNotFound)

	p, err := l.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	assert.Equal(t, 3, p.Option("42").Stock)
}

func TestMemoryLedger_SeedReportsInvalidProduct(t *testing.T) {
	l := NewMemoryLedger()
	err := l.Seed(shoe(5, 3), Product{ID: "bad", Stock: -1})
	assert.ErrorIs(t, err, ErrInvalidProduct)

	_, err = l.Get(context.Background(), "P")
	assert.NoError(t, err)
	_, err = l.Get(context.Background(), "bad")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(shoe(50, 3)))

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(context.Background(), Reservation{ProductID: "P", Variant: "42", Quantity: 1}); err == nil {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	p, err := l.Get(context.Background(), "P")
	require.NoError(t, err)
	assert.Equal(t, int32(3), won.Load())
	assert.Equal(t, 0, p.Option("42").Stock)
	assert.Equal(t, 47, p.Stock)
}

func TestMemoryLedger_GetReturnsCopy(t *testing.T) {
	l := NewMemoryLedger()
	require.NoError(t, l.Seed(shoe(5, 3)))

	p, err := l.Get(context.Background(), "P")
	require.NoError(t, err)
	p.Option("42").Stock = 100

	again, err := l.Get(context.Background(), "P")
	require.NoError(t, err)
	assert.Equal(t, 3, again.Option("42").Stock)
}

func TestProduct_Validate(t *testing.T) {
	dup := shoe(5, 3)
	dup.Variants = append(dup.Variants, VariantGroup{Name: "Color", Options: []VariantOption{{Name: "42", Stock: 1}}})

	over := shoe(2, 3)

	neg := shoe(5, 3)
	neg.Stock = -1

	empty := shoe(5, 3)
	empty.Variants = append(empty.Variants, VariantGroup{Name: "Color"})

	assert.NoError(t, shoe(5, 3).Validate())
	assert.Error(t, Product{}.Validate())
	assert.ErrorContains(t, dup.Validate(), "duplicate option")
	assert.ErrorContains(t, over.Validate(), "exceeds product stock")
	assert.ErrorContains(t, neg.Validate(), "negative")
	assert.ErrorContains(t, empty.Validate(), "has no options")
	assert.ErrorIs(t, empty.Validate(), ErrInvalidProduct)
}

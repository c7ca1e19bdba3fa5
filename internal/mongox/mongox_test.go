package mongox

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func TestDecimalCodec(t *testing.T) {
	type priced struct {
		Price decimal.Decimal `bson:"price"`
	}
	raw, err := bson.MarshalWithRegistry(Registry(), priced{Price: decimal.RequireFromString("499000.50")})
	require.NoError(t, err)

	var got priced
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), raw, &got))
	assert.True(t, decimal.RequireFromString("499000.50").Equal(got.Price))

	legacy, err := bson.Marshal(bson.M{"price": int32(1200)})
	require.NoError(t, err)
	require.NoError(t, bson.UnmarshalWithRegistry(Registry(), legacy, &got))
	assert.True(t, decimal.NewFromInt(1200).Equal(got.Price))
}

func testDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	db := client.Database("storefront_test_" + uuid.NewString()[:8])
	require.NoError(t, EnsureIndexes(ctx, db))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = db.Drop(ctx)
		_ = client.Disconnect(ctx)
	})
	return db
}

func shoe() stock.Product {
	return stock.Product{
		ID: "P", Name: "Runner", Stock: 5,
		Variants: []stock.VariantGroup{
			{Name: "Color", Options: []stock.VariantOption{{Name: "red", Price: decimal.NewFromInt(500000), Stock: 5}}},
			{Name: "Size", Options: []stock.VariantOption{
				{Name: "41", Price: decimal.NewFromInt(500000), Stock: 2},
				{Name: "42", Price: decimal.NewFromInt(500000), Stock: 3},
			}},
		},
	}
}

func TestLedger_ReserveAndRelease(t *testing.T) {
	l := NewLedger(testDB(t))
	ctx := context.Background()
	require.NoError(t, l.Put(ctx, shoe()))

	p, err := l.Reserve(ctx, stock.Reservation{ProductID: "P", Variant: "42", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
	assert.Equal(t, 1, p.Option("42").Stock)
	assert.Equal(t, 2, p.Option("41").Stock)
	assert.Equal(t, 5, p.Option("red").Stock)
	assert.True(t, decimal.NewFromInt(500000).Equal(p.Option("42").Price))

	_, err = l.Reserve(ctx, stock.Reservation{ProductID: "P", Variant: "42", Quantity: 2})
	assert.ErrorIs(t, err, stock.ErrNoMatch)
	_, err = l.Reserve(ctx, stock.Reservation{ProductID: "P", Variant: "44", Quantity: 1})
	assert.ErrorIs(t, err, stock.ErrNoMatch)

	require.NoError(t, l.Release(ctx, stock.Reservation{ProductID: "P", Variant: "42", Quantity: 2}))
	got, err := l.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)
	assert.Equal(t, 3, got.Option("42").Stock)

	assert.ErrorIs(t, l.Release(ctx, stock.Reservation{ProductID: "gone", Quantity: 1}), stock.ErrNotFound)
	assert.ErrorIs(t, l.Release(ctx, stock.Reservation{ProductID: "P", Variant: "44", Quantity: 1}), stock.ErrOptionNotFound)
	got, err = l.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 5, got.Stock)

	_, err = l.Get(ctx, "gone")
	assert.ErrorIs(t, err, stock.ErrNotFound)
}

func TestLedger_ConcurrentReserveNeverOversells(t *testing.T) {
	l := NewLedger(testDB(t))
	ctx := context.Background()
	require.NoError(t, l.Put(ctx, shoe()))

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Reserve(ctx, stock.Reservation{ProductID: "P", Variant: "42", Quantity: 1}); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, wins)
	got, err := l.Get(ctx, "P")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Option("42").Stock)
}

func TestOrderStore(t *testing.T) {
	s := NewOrderStore(testDB(t))
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	o := &orders.Order{
		ID: uuid.NewString(), UserID: "alice",
		Items:       []orders.OrderItem{{ProductID: "P", ProductName: "Runner", Quantity: 1, Price: decimal.NewFromInt(500000), Variant: &orders.ItemVariant{Name: "42"}}},
		Status:      orders.StatusPending,
		TotalAmount: decimal.RequireFromString("530000.00"),
		Version:     1, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.Insert(ctx, o))
	assert.ErrorIs(t, s.Insert(ctx, o), ErrOrderExists)

	next := o.Clone()
	next.Status = orders.StatusCancelled
	next.Version = 2
	require.NoError(t, s.Update(ctx, next, 1))
	assert.ErrorIs(t, s.Update(ctx, next, 1), orders.ErrVersionConflict)

	got, err := s.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusCancelled, got.Status)
	assert.Equal(t, "42", got.Items[0].VariantName())
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount))

	list, err := s.List(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
}

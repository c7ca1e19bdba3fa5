// Package backend opens the stock ledger and order store selected by
// STORE_DRIVER.
package backend

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/mongox"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/postgres"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"go.uber.org/zap"
)

type Backend struct {
	Ledger stock.Ledger
	Store  orders.Store
	Close  func(context.Context) error
}

func Open(ctx context.Context, cfg config.Config, log *zap.Logger) (Backend, error) {
	switch cfg.StoreDriver {
	case "memory":
		log.Warn("using in-memory ledger and order store; data is lost on restart")
		return Backend{
			Ledger: stock.NewMemoryLedger(),
			Store:  orders.NewMemoryStore(),
			Close:  func(context.Context) error { return nil },
		}, nil

	case "postgres":
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return Backend{}, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, pool); err != nil {
			pool.Close()
			return Backend{}, fmt.Errorf("postgres migrate: %w", err)
		}
		return Backend{
			Ledger: &postgres.Ledger{DB: pool},
			Store:  &postgres.OrderStore{DB: pool},
			Close: func(context.Context) error {
				pool.Close()
				return nil
			},
		}, nil

	case "mongo":
		client, err := mongox.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return Backend{}, fmt.Errorf("mongo connect: %w", err)
		}
		db := client.Database(cfg.MongoDatabase)
		if err := mongox.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(ctx)
			return Backend{}, fmt.Errorf("mongo indexes: %w", err)
		}
		return Backend{
			Ledger: mongox.NewLedger(db),
			Store:  mongox.NewOrderStore(db),
			Close:  client.Disconnect,
		}, nil
	}
	return Backend{}, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

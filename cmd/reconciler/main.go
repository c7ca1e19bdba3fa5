package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/backend"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/reconcile"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "reconciler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.StoreDriver == "memory" {
		return errors.New("reconciler needs a shared ledger; STORE_DRIVER=memory is per process")
	}
	if len(cfg.KafkaBrokers) == 0 || cfg.RedisAddr == "" {
		return errors.New("KAFKA_BROKERS and REDIS_ADDR are required")
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = store.Close(cctx)
	}()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb); err != nil {
		return err
	}

	svc := &reconcile.Service{
		Ledger: store.Ledger,
		Dedup:  redisx.NewDedup(rdb, "reconciler"),
		Log:    log,
	}
	consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ReconcilerGroup, orders.TopicCompensationAudit, cfg.ReconcilerWorkers, log)

	log.Info("reconciler consuming",
		zap.String("topic", orders.TopicCompensationAudit),
		zap.String("group", cfg.ReconcilerGroup),
		zap.Int("workers", cfg.ReconcilerWorkers))
	return consumer.Start(ctx, svc.HandleCompensationFailed)
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/backend"
	"github.com/ariefcatur/go-storefront-orders/internal/config"
	"github.com/ariefcatur/go-storefront-orders/internal/events"
	"github.com/ariefcatur/go-storefront-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/logging"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/redisx"
	"github.com/ariefcatur/go-storefront-orders/internal/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "order-api: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTelEndpoint,
		ServiceName: cfg.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer shutdown(log, "telemetry", tel.Shutdown)

	// Storage
	store, err := backend.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shutdown(log, "store", store.Close)

	deps := orders.Deps{
		Ledger: store.Ledger,
		Store:  store.Store,
		Logger: log,
		Tracer: tel.Tracer,
		Meter:  tel.Meter,
	}

	// Redis: idempotency keys and realtime broadcasts
	var idem httpx.Idempotency
	if cfg.RedisAddr != "" {
		rdb := redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := redisx.Ping(ctx, rdb); err != nil {
			log.Warn("redis unavailable; idempotency keys and broadcasts disabled", zap.Error(err))
		} else {
			idem = redisx.NewIdempotency(rdb)
			deps.Broadcaster = redisx.NewBroadcaster(rdb)
		}
	}

	// Kafka: notifications, email outbox, compensation audit. Producers get
	// their own context so they keep flushing while HTTP drains.
	prodCtx, stopProducers := context.WithCancel(context.Background())
	var producers []*kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		for _, topic := range []string{orders.TopicNotifications, orders.TopicEmailOutbox, orders.TopicCompensationAudit} {
			p := kafkax.NewProducer(cfg.KafkaBrokers, topic, 1024, log)
			p.Start(prodCtx)
			producers = append(producers, p)
		}
		d := events.NewKafkaDispatcher(producers[0], producers[1], producers[2], cfg.ServiceName)
		deps.Dispatcher = d
		deps.Auditor = d
	}
	defer func() {
		stopProducers()
		for _, p := range producers {
			p.WaitClosed()
		}
	}()

	svc, err := orders.NewService(deps, orders.Config{
		Mode:                orders.ReservationMode(cfg.ReservationMode),
		RestockOnCancel:     cfg.RestockOnCancel,
		CompensationTimeout: cfg.CompensationTimeout,
		SideEffectTimeout:   cfg.SideEffectTimeout,
	})
	if err != nil {
		return err
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	router := httpx.NewRouter(log)
	(&httpx.OrdersHandler{Service: svc, Idempotency: idem, Log: log}).Register(router, verifier)
	(&httpx.ProductsHandler{Ledger: store.Ledger, Log: log}).Register(router, verifier)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		// Let in-flight notifications and audits reach the producers.
		if err := svc.Wait(sctx); err != nil {
			log.Warn("side effects still running at shutdown", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

func shutdown(log *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		log.Warn("close "+name, zap.Error(err))
	}
}

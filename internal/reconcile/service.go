// Package reconcile retries stock releases that failed during order
// compensation. It consumes the compensation audit topic.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Dedup records which audit events were already applied.
type Dedup interface {
	Seen(ctx context.Context, id string) (bool, error)
	Mark(ctx context.Context, id string) error
}

type Service struct {
	Ledger stock.Ledger
	Dedup  Dedup
	Log    *zap.Logger
}

// HandleCompensationFailed is installed as a consumer handler. It returns an
// error, leaving the offset uncommitted, when the release should be retried.
func (s *Service) HandleCompensationFailed(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Log.Error("drop malformed audit event", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	if env.EventType != orders.EventCompensationFailed {
		return nil
	}

	seen, err := s.Dedup.Seen(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup lookup: %w", err)
	}
	if seen {
		return nil
	}

	var p orders.CompensationFailedPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.Log.Error("drop audit event with bad payload", zap.String("event_id", env.EventID), zap.Error(err))
		return nil
	}
	if p.ProductID == "" || p.Quantity <= 0 {
		s.Log.Warn("ignore empty compensation", zap.String("event_id", env.EventID))
		return nil
	}

	r := stock.Reservation{ProductID: p.ProductID, Variant: p.Variant, Quantity: p.Quantity}
	err = s.Ledger.Release(ctx, r)
	switch {
	case errors.Is(err, stock.ErrNotFound):
		// The product was removed; nothing left to restock.
		s.Log.Warn("compensation target gone",
			zap.String("event_id", env.EventID), zap.String("product_id", p.ProductID))
	case errors.Is(err, stock.ErrOptionNotFound):
		// Retrying cannot succeed; the total stays short until someone
		// restocks the product by hand.
		s.Log.Error("compensation option gone, needs manual restock",
			zap.String("event_id", env.EventID),
			zap.String("product_id", p.ProductID),
			zap.String("variant", p.Variant),
			zap.Int("quantity", p.Quantity))
	case err != nil:
		return fmt.Errorf("release %s: %w", p.ProductID, err)
	default:
		s.Log.Info("compensation reconciled",
			zap.String("event_id", env.EventID),
			zap.String("attempt_id", p.AttemptID),
			zap.String("product_id", p.ProductID),
			zap.String("variant", p.Variant),
			zap.Int("quantity", p.Quantity))
	}

	if err := s.Dedup.Mark(ctx, env.EventID); err != nil {
		// The release happened; a redelivery would restock twice.
		s.Log.Error("dedup mark failed after release", zap.String("event_id", env.EventID), zap.Error(err))
	}
	return nil
}

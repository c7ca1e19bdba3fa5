package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// reserve deducts stock for items in list order and returns the reservations
// it applied. Any failure leaves the ledger as it found it, apart from
// compensation failures, which are reported through the audit channel.
func (s *Service) reserve(ctx context.Context, attemptID string, items []OrderItem) ([]stock.Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "orders.reserve")
	defer span.End()

	rs := reservations(items)

	if br, ok := s.ledger.(stock.BatchReserver); ok && s.cfg.Mode != ModeSaga {
		span.SetAttributes(attribute.String("mode", "batch"))
		idx, err := br.ReserveBatch(ctx, rs)
		switch {
		case err == nil:
			return rs, nil
		case errors.Is(err, stock.ErrNoMatch) && idx >= 0 && idx < len(items):
			return nil, s.rejected(ctx, attemptID, items[idx])
		default:
			return nil, fmt.Errorf("reserve stock: %w", err)
		}
	}

	span.SetAttributes(attribute.String("mode", "saga"))
	applied := make([]stock.Reservation, 0, len(rs))
	for i, r := range rs {
		if err := ctx.Err(); err != nil {
			s.compensate(ctx, attemptID, applied)
			return nil, fmt.Errorf("reserve stock: %w", err)
		}

		_, err := s.ledger.Reserve(ctx, r)
		switch {
		case err == nil:
			applied = append(applied, r)
		case errors.Is(err, stock.ErrNoMatch):
			s.compensate(ctx, attemptID, applied)
			return nil, s.rejected(ctx, attemptID, items[i])
		default:
			// The outcome of r itself is unknown; only confirmed reservations
			// are undone.
			s.log.Error("reserve stock failed",
				zap.String("attempt_id", attemptID),
				zap.String("product_id", r.ProductID),
				zap.String("variant", r.Variant),
				zap.Error(err))
			s.compensate(ctx, attemptID, applied)
			return nil, fmt.Errorf("reserve %s: %w", r.ProductID, err)
		}
	}
	return applied, nil
}

func (s *Service) rejected(ctx context.Context, attemptID string, it OrderItem) error {
	s.metrics.rejected.Add(ctx, 1, metric.WithAttributes(attribute.String("product_id", it.ProductID)))
	s.log.Info("order rejected: insufficient stock",
		zap.String("attempt_id", attemptID),
		zap.String("product_id", it.ProductID),
		zap.String("variant", it.VariantName()),
		zap.Int("quantity", it.Quantity))
	return insufficientStock(it)
}

// compensate releases every reservation in applied, in order. It is a best
// effort sweep: a failed release is recorded and the sweep continues. It runs
// on a context detached from the caller so that a cancelled request still
// unwinds.
func (s *Service) compensate(ctx context.Context, attemptID string, applied []stock.Reservation) []CompensationFailure {
	if len(applied) == 0 {
		return nil
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.CompensationTimeout)
	defer cancel()
	cctx, span := s.tracer.Start(cctx, "orders.compensate")
	defer span.End()

	var failures []CompensationFailure
	for _, r := range applied {
		err := s.ledger.Release(cctx, r)
		if err == nil {
			s.metrics.compensations.Add(cctx, 1)
			continue
		}

		f := CompensationFailure{AttemptID: attemptID, Reservation: r, Err: err, OccurredAt: s.now()}
		failures = append(failures, f)
		span.RecordError(f)
		s.metrics.compensationFailures.Add(cctx, 1, metric.WithAttributes(attribute.String("product_id", r.ProductID)))
		s.log.Error("stock compensation failed; ledger left under-restocked",
			zap.String("attempt_id", attemptID),
			zap.String("product_id", r.ProductID),
			zap.String("variant", r.Variant),
			zap.Int("quantity", r.Quantity),
			zap.Error(err))
		s.audit(ctx, f)
	}
	return failures
}

package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ariefcatur/go-storefront-orders/internal/auth"
	"github.com/ariefcatur/go-storefront-orders/internal/stock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

type ReservationMode string

const (
	// ModeAuto uses a transactional batch when the ledger supports one and
	// the compensating saga otherwise.
	ModeAuto ReservationMode = "auto"
	ModeSaga ReservationMode = "saga"
)

type Config struct {
	Mode                ReservationMode
	RestockOnCancel     bool
	CompensationTimeout time.Duration
	SideEffectTimeout   time.Duration
}

type Deps struct {
	Ledger      stock.Ledger
	Store       Store
	Dispatcher  Dispatcher
	Broadcaster Broadcaster
	Auditor     Auditor
	Logger      *zap.Logger
	Tracer      trace.Tracer
	Meter       metric.Meter
}

type serviceMetrics struct {
	created              metric.Int64Counter
	rejected             metric.Int64Counter
	compensations        metric.Int64Counter
	compensationFailures metric.Int64Counter
}

type Service struct {
	ledger      stock.Ledger
	store       Store
	dispatcher  Dispatcher
	broadcaster Broadcaster
	auditor     Auditor
	log         *zap.Logger
	tracer      trace.Tracer
	metrics     serviceMetrics
	cfg         Config

	now   func() time.Time
	newID func() string

	sideEffects sync.WaitGroup
}

const maxUpdateAttempts = 3

func NewService(d Deps, cfg Config) (*Service, error) {
	if d.Ledger == nil || d.Store == nil {
		return nil, errors.New("orders: ledger and store are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Tracer == nil {
		d.Tracer = tracenoop.NewTracerProvider().Tracer("orders")
	}
	if d.Meter == nil {
		d.Meter = metricnoop.NewMeterProvider().Meter("orders")
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	cfg.CompensationTimeout = defaultDuration(cfg.CompensationTimeout, 10*time.Second)
	cfg.SideEffectTimeout = defaultDuration(cfg.SideEffectTimeout, 5*time.Second)

	m, err := newServiceMetrics(d.Meter)
	if err != nil {
		return nil, err
	}

	return &Service{
		ledger:      d.Ledger,
		store:       d.Store,
		dispatcher:  d.Dispatcher,
		broadcaster: d.Broadcaster,
		auditor:     d.Auditor,
		log:         d.Logger,
		tracer:      d.Tracer,
		metrics:     m,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}, nil
}

func newServiceMetrics(m metric.Meter) (serviceMetrics, error) {
	var out serviceMetrics
	var err error
	if out.created, err = m.Int64Counter("orders_created_total",
		metric.WithDescription("Orders persisted after a full reservation")); err != nil {
		return out, err
	}
	if out.rejected, err = m.Int64Counter("orders_stock_rejected_total",
		metric.WithDescription("Order attempts rejected for insufficient stock")); err != nil {
		return out, err
	}
	if out.compensations, err = m.Int64Counter("stock_compensations_total",
		metric.WithDescription("Inverse stock mutations applied")); err != nil {
		return out, err
	}
	if out.compensationFailures, err = m.Int64Counter("stock_compensation_failures_total",
		metric.WithDescription("Inverse stock mutations that failed and left a ledger under-restocked")); err != nil {
		return out, err
	}
	return out, nil
}

type CreateOrderInput struct {
	Items          []OrderItem     `json:"items"`
	CustomerInfo   CustomerInfo    `json:"customerInfo"`
	PaymentMethod  string          `json:"paymentMethod"`
	TotalAmount    decimal.Decimal `json:"totalAmount"`
	ShippingFee    decimal.Decimal `json:"shippingFee"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	VoucherCode    string          `json:"voucherCode,omitempty"`
	UserID         string          `json:"userId"`
}

func (in CreateOrderInput) validate() error {
	if len(in.Items) == 0 {
		return errorf(CodeValidation, "order has no items")
	}
	for i, it := range in.Items {
		if it.ProductID == "" {
			return errorf(CodeValidation, "item %d: productId is required", i)
		}
		if strings.TrimSpace(it.ProductName) == "" {
			return errorf(CodeValidation, "item %d: productName is required", i)
		}
		if it.Quantity < 1 {
			return errorf(CodeValidation, "item %d: quantity must be at least 1", i)
		}
		if it.Price.IsNegative() {
			return errorf(CodeValidation, "item %d: price cannot be negative", i)
		}
		if it.Variant != nil && it.Variant.Name == "" {
			return errorf(CodeValidation, "item %d: variant name is required when a variant is given", i)
		}
	}
	if in.TotalAmount.IsNegative() || in.ShippingFee.IsNegative() || in.DiscountAmount.IsNegative() {
		return errorf(CodeValidation, "amounts cannot be negative")
	}
	return nil
}

func resolveOwner(p auth.Principal, requested string) (string, error) {
	if requested == "" || requested == p.UserID {
		if p.UserID == "" {
			return "", errorf(CodeValidation, "userId is required")
		}
		return p.UserID, nil
	}
	if !p.IsAdmin() {
		return "", ErrForbidden
	}
	return requested, nil
}

// CreateOrder reserves stock for every item and persists the order only when
// all reservations succeeded. On failure nothing is persisted and every
// reservation already applied is undone.
func (s *Service) CreateOrder(ctx context.Context, p auth.Principal, in CreateOrderInput) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, "orders.create")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}
	userID, err := resolveOwner(p, in.UserID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	method := in.PaymentMethod
	if method == "" {
		method = PaymentMethodCOD
	}
	order := &Order{
		ID:                 s.newID(),
		UserID:             userID,
		Items:              append([]OrderItem(nil), in.Items...),
		CustomerInfo:       in.CustomerInfo,
		PaymentMethod:      method,
		Status:             StatusPending,
		PaymentStatus:      PaymentUnpaid,
		AwaitingPrepayment: method != PaymentMethodCOD,
		TotalAmount:        in.TotalAmount,
		DiscountAmount:     in.DiscountAmount,
		ShippingFee:        in.ShippingFee,
		VoucherCode:        in.VoucherCode,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	span.SetAttributes(
		attribute.String("order_id", order.ID),
		attribute.String("user_id", userID),
		attribute.Int("items", len(order.Items)),
	)

	reserved, err := s.reserve(ctx, order.ID, order.Items)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if err := s.store.Insert(ctx, order); err != nil {
		span.RecordError(err)
		s.log.Error("persist order failed, releasing stock", zap.String("order_id", order.ID), zap.Error(err))
		s.compensate(ctx, order.ID, reserved)
		return nil, fmt.Errorf("persist order: %w", err)
	}

	s.metrics.created.Add(ctx, 1)
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(order.Items)),
		zap.String("total", order.TotalAmount.String()))

	s.announce(ctx, order, EventOrderCreated, TemplateOrderConfirmation, createdPayload(order))
	return order.Clone(), nil
}

func (s *Service) GetOrder(ctx context.Context, p auth.Principal, orderID string) (*Order, error) {
	o, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(o.UserID) {
		return nil, ErrForbidden
	}
	return o, nil
}

// ListOrders returns the caller's orders. Administrators may pass userID to
// look at another shopper, or "" for every order.
func (s *Service) ListOrders(ctx context.Context, p auth.Principal, userID string, limit int) ([]Order, error) {
	switch {
	case p.IsAdmin():
	case userID == "" || userID == p.UserID:
		userID = p.UserID
	default:
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	out, err := s.store.List(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

// MarkAsPaid confirms payment. Owner or administrator only.
func (s *Service) MarkAsPaid(ctx context.Context, p auth.Principal, orderID string) (*Order, error) {
	var from Status
	o, changed, err := s.mutate(ctx, orderID, func(o *Order) (bool, error) {
		if !p.CanAccess(o.UserID) {
			return false, ErrForbidden
		}
		if o.PaymentStatus == PaymentPaid {
			return false, nil
		}
		from = o.Status
		return true, o.MarkPaid(s.now())
	})
	if err != nil || !changed {
		return o, err
	}

	s.log.Info("order paid", zap.String("order_id", o.ID), zap.String("from", string(from)), zap.String("to", string(o.Status)))
	s.announce(ctx, o, EventOrderPaid, "", statusPayload(o, from, p.UserID))
	return o, nil
}

// Cancel cancels an order. Stock is only returned when RestockOnCancel is set.
func (s *Service) Cancel(ctx context.Context, p auth.Principal, orderID, reason string) (*Order, error) {
	var from Status
	o, _, err := s.mutate(ctx, orderID, func(o *Order) (bool, error) {
		if !p.CanAccess(o.UserID) {
			return false, ErrForbidden
		}
		from = o.Status
		return true, o.Cancel(p.UserID, reason, p.IsAdmin(), s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order cancelled", zap.String("order_id", o.ID), zap.String("from", string(from)), zap.String("by", p.UserID))
	s.afterCancel(ctx, o, from, p.UserID)
	return o, nil
}

// UpdateStatus is the administrative status path. Transitions are guarded by
// the same forward-only table as everything else.
func (s *Service) UpdateStatus(ctx context.Context, p auth.Principal, orderID string, next Status) (*Order, error) {
	if !p.IsAdmin() {
		return nil, ErrForbidden
	}
	if _, ok := ParseStatus(string(next)); !ok {
		return nil, errorf(CodeValidation, "unknown status %q", next)
	}

	var from Status
	o, _, err := s.mutate(ctx, orderID, func(o *Order) (bool, error) {
		from = o.Status
		return true, o.Advance(next, p.UserID, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order status updated", zap.String("order_id", o.ID), zap.String("from", string(from)), zap.String("to", string(next)))
	if next == StatusCancelled {
		s.afterCancel(ctx, o, from, p.UserID)
	} else {
		s.announce(ctx, o, EventOrderStatusChanged, "", statusPayload(o, from, p.UserID))
	}
	return o, nil
}

func (s *Service) afterCancel(ctx context.Context, o *Order, from Status, by string) {
	if s.cfg.RestockOnCancel {
		s.compensate(ctx, o.ID, reservations(o.Items))
	}
	s.announce(ctx, o, EventOrderCancelled, TemplateOrderCancelled, statusPayload(o, from, by))
}

func statusPayload(o *Order, from Status, by string) OrderStatusPayload {
	return OrderStatusPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		From:          from,
		To:            o.Status,
		PaymentStatus: o.PaymentStatus,
		Reason:        o.CancelReason,
		By:            by,
	}
}

func (s *Service) load(ctx context.Context, orderID string) (*Order, error) {
	o, err := s.store.Get(ctx, orderID)
	if errors.Is(err, ErrOrderNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load order %s: %w", orderID, err)
	}
	return o, nil
}

// mutate applies fn to a fresh copy of the order and writes it back with a
// version check, retrying when another writer got there first. fn reports
// whether it changed anything; unchanged orders are not written.
func (s *Service) mutate(ctx context.Context, orderID string, fn func(*Order) (bool, error)) (*Order, bool, error) {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		cur, err := s.load(ctx, orderID)
		if err != nil {
			return nil, false, err
		}
		next := cur.Clone()
		changed, err := fn(next)
		if err != nil {
			return nil, false, err
		}
		if !changed {
			return cur, false, nil
		}
		next.Version = cur.Version + 1

		err = s.store.Update(ctx, next, cur.Version)
		switch {
		case err == nil:
			return next, true, nil
		case errors.Is(err, ErrVersionConflict):
			continue
		case errors.Is(err, ErrOrderNotFound):
			return nil, false, ErrNotFound
		default:
			return nil, false, fmt.Errorf("update order %s: %w", orderID, err)
		}
	}
	return nil, false, errorf(CodeStateConflict, "order %s is being modified concurrently, retry", orderID)
}

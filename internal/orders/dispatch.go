package orders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Dispatcher delivers notifications and emails. Calls are fire-and-forget:
// the service never waits on them for correctness.
type Dispatcher interface {
	Notify(ctx context.Context, eventType string, payload any) error
	SendEmail(ctx context.Context, template string, payload any) error
}

// Broadcaster pushes realtime events to connected clients.
type Broadcaster interface {
	Publish(ctx context.Context, channel string, event any) error
}

// Auditor is the operator alert channel for failed compensations.
type Auditor interface {
	CompensationFailed(ctx context.Context, payload CompensationFailedPayload) error
}

// RealtimeEvent is what broadcasters receive.
type RealtimeEvent struct {
	Type  string `json:"type"`
	Order *Order `json:"order"`
}

// goSideEffect runs fn on its own goroutine with a context detached from the
// request. Errors and panics are logged and swallowed.
func (s *Service) goSideEffect(ctx context.Context, name string, fn func(context.Context) error) {
	base := context.WithoutCancel(ctx)
	s.sideEffects.Add(1)
	go func() {
		defer s.sideEffects.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("side effect panicked", zap.String("effect", name), zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(base, s.cfg.SideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Warn("side effect failed", zap.String("effect", name), zap.Error(err))
		}
	}()
}

func (s *Service) announce(ctx context.Context, o *Order, eventType, template string, payload any) {
	snapshot := o.Clone()
	if s.dispatcher != nil {
		s.goSideEffect(ctx, "notify:"+eventType, func(ctx context.Context) error {
			return s.dispatcher.Notify(ctx, eventType, payload)
		})
		if template != "" {
			s.goSideEffect(ctx, "email:"+template, func(ctx context.Context) error {
				return s.dispatcher.SendEmail(ctx, template, payload)
			})
		}
	}
	if s.broadcaster != nil {
		ev := RealtimeEvent{Type: eventType, Order: snapshot}
		s.goSideEffect(ctx, "broadcast:"+eventType, func(ctx context.Context) error {
			if err := s.broadcaster.Publish(ctx, UserChannel(snapshot.UserID), ev); err != nil {
				return fmt.Errorf("user channel: %w", err)
			}
			return s.broadcaster.Publish(ctx, ChannelAdminOrders, ev)
		})
	}
}

func (s *Service) audit(ctx context.Context, f CompensationFailure) {
	if s.auditor == nil {
		return
	}
	payload := compensationPayload(f)
	s.goSideEffect(ctx, "audit:compensation", func(ctx context.Context) error {
		return s.auditor.CompensationFailed(ctx, payload)
	})
}

// Wait blocks until in-flight side effects finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sideEffects.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func defaultDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// Package events delivers order side effects to Kafka: notifications, the
// email outbox and the stock compensation audit topic.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Publisher is the part of kafkax.Producer the dispatcher needs.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) error
}

// EmailMessage is what the mail workers read from the outbox topic.
type EmailMessage struct {
	Template string          `json:"template"`
	Data     json.RawMessage `json:"data"`
}

type KafkaDispatcher struct {
	Notifications Publisher
	EmailOutbox   Publisher
	Audit         Publisher
	ServiceName   string

	now func() time.Time
}

func NewKafkaDispatcher(notifications, emails, audit Publisher, serviceName string) *KafkaDispatcher {
	return &KafkaDispatcher{
		Notifications: notifications,
		EmailOutbox:   emails,
		Audit:         audit,
		ServiceName:   serviceName,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (d *KafkaDispatcher) Notify(ctx context.Context, eventType string, payload any) error {
	return d.publish(ctx, d.Notifications, eventType, correlationID(payload), payload)
}

func (d *KafkaDispatcher) SendEmail(ctx context.Context, template string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode email data: %w", err)
	}
	return d.publish(ctx, d.EmailOutbox, "EmailRequested", correlationID(payload),
		EmailMessage{Template: template, Data: data})
}

func (d *KafkaDispatcher) CompensationFailed(ctx context.Context, p orders.CompensationFailedPayload) error {
	return d.publish(ctx, d.Audit, orders.EventCompensationFailed, p.AttemptID, p)
}

func (d *KafkaDispatcher) publish(ctx context.Context, pub Publisher, eventType, correlation string, payload any) error {
	if pub == nil {
		return fmt.Errorf("no publisher for %s", eventType)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", eventType, err)
	}
	env := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    d.now(),
		Producer:      d.ServiceName,
		CorrelationID: correlation,
		Payload:       body,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		env.TraceID = sc.TraceID().String()
	}
	return pub.Publish(orders.PartitionKey(correlation), kafkax.MustMarshal(env), kafkax.EventHeaders(eventType, env.EventVersion)...)
}

func correlationID(payload any) string {
	switch p := payload.(type) {
	case orders.OrderCreatedPayload:
		return p.OrderID
	case orders.OrderStatusPayload:
		return p.OrderID
	case orders.CompensationFailedPayload:
		return p.AttemptID
	}
	return ""
}

package events

import (
	"context"
	"encoding/json"
	"testing"

	kafkax "github.com/ariefcatur/go-storefront-orders/internal/kafka"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	msgs []kafkago.Message
	err  error
}

func (r *recorder) Publish(key, value []byte, headers ...kafkago.Header) error {
	r.msgs = append(r.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
	return r.err
}

func decode(t *testing.T, m kafkago.Message) orders.Envelope {
	t.Helper()
	var env orders.Envelope
	require.NoError(t, json.Unmarshal(m.Value, &env))
	return env
}

func TestNotify(t *testing.T) {
	notif := &recorder{}
	d := NewKafkaDispatcher(notif, &recorder{}, &recorder{}, "orders-api")

	err := d.Notify(context.Background(), orders.EventOrderPaid, orders.OrderStatusPayload{
		OrderID: "o1", From: orders.StatusPending, To: orders.StatusProcessing,
	})
	require.NoError(t, err)
	require.Len(t, notif.msgs, 1)

	m := notif.msgs[0]
	assert.Equal(t, "o1", string(m.Key))
	assert.Equal(t, orders.EventOrderPaid, kafkax.HeaderValue(m, "x-event-type"))

	env := decode(t, m)
	assert.Equal(t, "orders-api", env.Producer)
	assert.Equal(t, "o1", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	p, err := kafkax.UnwrapPayload[orders.OrderStatusPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusProcessing, p.To)
}

func TestSendEmail(t *testing.T) {
	outbox := &recorder{}
	d := NewKafkaDispatcher(&recorder{}, outbox, &recorder{}, "orders-api")

	err := d.SendEmail(context.Background(), orders.TemplateOrderConfirmation, orders.OrderCreatedPayload{OrderID: "o2"})
	require.NoError(t, err)
	require.Len(t, outbox.msgs, 1)

	msg, err := kafkax.UnwrapPayload[EmailMessage](decode(t, outbox.msgs[0]).Payload)
	require.NoError(t, err)
	assert.Equal(t, orders.TemplateOrderConfirmation, msg.Template)
	assert.JSONEq(t, `"o2"`, string(mustField(t, msg.Data, "order_id")))
}

func mustField(t *testing.T, raw json.RawMessage, name string) json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[name]
}

func TestCompensationFailed(t *testing.T) {
	audit := &recorder{}
	d := NewKafkaDispatcher(&recorder{}, &recorder{}, audit, "orders-api")

	err := d.CompensationFailed(context.Background(), orders.CompensationFailedPayload{
		AttemptID: "a1", ProductID: "P1", Quantity: 2, Error: "timeout",
	})
	require.NoError(t, err)
	require.Len(t, audit.msgs, 1)
	env := decode(t, audit.msgs[0])
	assert.Equal(t, orders.EventCompensationFailed, env.EventType)
	assert.Equal(t, "a1", string(audit.msgs[0].Key))
}

func TestPublishErrorsSurface(t *testing.T) {
	d := NewKafkaDispatcher(&recorder{err: kafkax.ErrBufferFull}, nil, nil, "orders-api")

	assert.ErrorIs(t, d.Notify(context.Background(), orders.EventOrderCreated, orders.OrderCreatedPayload{}), kafkax.ErrBufferFull)
	assert.Error(t, d.SendEmail(context.Background(), orders.TemplateOrderCancelled, orders.OrderStatusPayload{}))
}

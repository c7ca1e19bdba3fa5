package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{ServiceName: "order-api"})
	require.NoError(t, err)

	_, span := p.Tracer.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	c, err := p.Meter.Int64Counter("test_total")
	require.NoError(t, err)
	c.Add(context.Background(), 1)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSetup_Enabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: true, Endpoint: "127.0.0.1:4318", ServiceName: "order-api"})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	_, span := p.Tracer.Start(context.Background(), "real")
	assert.True(t, span.SpanContext().IsValid())
	span.End()
}

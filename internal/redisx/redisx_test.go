package redisx

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := New(addr)
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, Ping(context.Background(), rdb))
	return rdb
}

func TestIdempotency_ClaimCompleteReplay(t *testing.T) {
	idem := NewIdempotency(testClient(t))
	ctx := context.Background()
	user, key := "u-"+uuid.NewString(), uuid.NewString()

	got, err := idem.Claim(ctx, user, key)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = idem.Claim(ctx, user, key)
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Complete(ctx, user, key, "order-1"))
	got, err = idem.Claim(ctx, user, key)
	require.NoError(t, err)
	assert.Equal(t, "order-1", got)

	// Keys are scoped per user.
	got, err = idem.Claim(ctx, "other-"+user, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIdempotency_ReleaseAllowsRetry(t *testing.T) {
	idem := NewIdempotency(testClient(t))
	ctx := context.Background()
	user, key := "u-"+uuid.NewString(), uuid.NewString()

	_, err := idem.Claim(ctx, user, key)
	require.NoError(t, err)
	require.NoError(t, idem.Release(ctx, user, key))

	got, err := idem.Claim(ctx, user, key)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDedup(t *testing.T) {
	d := NewDedup(testClient(t), "test")
	ctx := context.Background()
	id := uuid.NewString()

	seen, err := d.Seen(ctx, id)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, id))
	seen, err = d.Seen(ctx, id)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestBroadcaster_Publish(t *testing.T) {
	rdb := testClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channel := "orders:user:" + uuid.NewString()
	sub := rdb.Subscribe(ctx, channel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, NewBroadcaster(rdb).Publish(ctx, channel, map[string]string{"type": "OrderCreated"}))

	msg, err := sub.ReceiveMessage(ctx)
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
	assert.Equal(t, "OrderCreated", got["type"])
}

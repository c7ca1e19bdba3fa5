package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memReader serves a fixed batch of messages, then blocks until ctx ends.
type memReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []kafka.Message
	closed    bool
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *memReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *memReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int64, 0, len(r.committed))
	for _, m := range r.committed {
		out = append(out, m.Offset)
	}
	return out
}

func testConsumer(r reader, workers int) *Consumer {
	c := newConsumer(r, workers, zap.NewNop())
	c.backoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond
	return c
}

func startConsumer(t *testing.T, c *Consumer, h Handler) (stop func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()
	return func() {
		stop()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func TestConsumer_RetriesFailedMessageBeforeMovingOn(t *testing.T) {
	r := &memReader{pending: []kafka.Message{{Partition: 0, Offset: 10}, {Partition: 0, Offset: 11}}}
	var mu sync.Mutex
	var handled []int64
	failures := 2

	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, m.Offset)
		if m.Offset == 10 && failures > 0 {
			failures--
			return errors.New("ledger down")
		}
		return nil
	}

	stop := startConsumer(t, testConsumer(r, 4), h)
	require.Eventually(t, func() bool { return len(r.commits()) == 2 }, time.Second, time.Millisecond)
	stop()

	assert.Equal(t, []int64{10, 11}, r.commits())
	mu.Lock()
	assert.Equal(t, []int64{10, 10, 10, 11}, handled)
	mu.Unlock()
	assert.True(t, r.closed)
}

func TestConsumer_FailingMessageBlocksOnlyItsPartition(t *testing.T) {
	r := &memReader{pending: []kafka.Message{
		{Partition: 0, Offset: 1},
		{Partition: 0, Offset: 2},
		{Partition: 1, Offset: 7},
	}}
	var mu sync.Mutex
	attempts := 0
	sawOffset2 := false

	h := func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case m.Partition == 0 && m.Offset == 1:
			attempts++
			return errors.New("ledger down")
		case m.Partition == 0:
			sawOffset2 = true
		}
		return nil
	}

	stop := startConsumer(t, testConsumer(r, 2), h)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts >= 3 && len(r.commits()) == 1
	}, time.Second, time.Millisecond)
	stop()

	assert.Equal(t, []int64{7}, r.commits())
	mu.Lock()
	assert.False(t, sawOffset2)
	mu.Unlock()
}

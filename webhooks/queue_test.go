package webhooks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/domain/events"
)

func TestQueueDebounceCoalescesBurst(t *testing.T) {
	bus := events.New(nil)
	var processed int32
	var batches int32
	var gotLen int

	var mu sync.Mutex
	q := NewQueue(QueueConfig{Debounce: 50 * time.Millisecond, MaxSize: 1000}, func(ctx context.Context, w QueuedWebhook) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, bus, nil)

	bus.Subscribe(events.WebhookBatchDone, func(e events.Event) {
		atomic.AddInt32(&batches, 1)
		mu.Lock()
		gotLen = len(e.Payload.(WebhookBatch).Webhooks)
		mu.Unlock()
	})

	for i := 0; i < 5; i++ {
		q.Enqueue(QueuedWebhook{PluginName: "demo"})
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(80 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&batches))
	assert.Equal(t, int32(5), atomic.LoadInt32(&processed))
	mu.Lock()
	assert.Equal(t, 5, gotLen)
	mu.Unlock()
}

func TestQueueBackpressureTripsOnMaxSize(t *testing.T) {
	bus := events.New(nil)
	var processed int32

	q := NewQueue(QueueConfig{Debounce: time.Hour, MaxSize: 3}, func(ctx context.Context, w QueuedWebhook) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, bus, nil)

	for i := 0; i < 7; i++ {
		q.Enqueue(QueuedWebhook{PluginName: "demo"})
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&processed) == 6
	}, time.Second, 5*time.Millisecond, "each max-size trip must process a full batch without waiting for the debounce")

	q.Flush(context.Background())
	assert.Equal(t, int32(7), atomic.LoadInt32(&processed), "all enqueued webhooks must eventually process")
}

func TestQueueFlushProcessesPendingImmediately(t *testing.T) {
	q := NewQueue(QueueConfig{Debounce: time.Hour, MaxSize: 1000}, func(ctx context.Context, w QueuedWebhook) error {
		return nil
	}, nil, nil)

	q.Enqueue(QueuedWebhook{PluginName: "demo"})
	assert.Equal(t, 1, q.Len())

	q.Flush(context.Background())
	assert.Equal(t, 0, q.Len())
}

func TestQueueClosedRejectsEnqueue(t *testing.T) {
	var processed int32
	q := NewQueue(QueueConfig{Debounce: time.Millisecond, MaxSize: 1000}, func(ctx context.Context, w QueuedWebhook) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, nil, nil)

	q.Close()
	q.Enqueue(QueuedWebhook{PluginName: "demo"})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&processed))
}

func TestOnWebhookReceivedCanDropWebhook(t *testing.T) {
	var processed int32
	q := NewQueue(QueueConfig{
		Debounce: 10 * time.Millisecond,
		MaxSize:  1000,
		Hooks: LifecycleHooks{
			OnWebhookReceived: func(w QueuedWebhook) (QueuedWebhook, bool, error) {
				if w.PluginName == "drop-me" {
					return w, false, nil
				}
				return w, true, nil
			},
		},
	}, func(ctx context.Context, w QueuedWebhook) error {
		atomic.AddInt32(&processed, 1)
		return nil
	}, nil, nil)

	q.Enqueue(QueuedWebhook{PluginName: "drop-me"})
	q.Enqueue(QueuedWebhook{PluginName: "keep-me"})

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&processed))
}

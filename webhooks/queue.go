package webhooks

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"udl-core/domain/events"
	"udl-core/domain/graph"
)

// Processor handles one webhook in a batch, resolving the plugin's
// registration and delegating to its Handler.
type Processor func(ctx context.Context, w QueuedWebhook) error

// Queue is the single FIFO debounced batch queue of spec.md §4.6. Grounded
// on debounce pattern in infrastructure/config/watcher.go
// (timer reset on each event), generalized to a queue with a size-based
// trip point as well as a time-based one.
type Queue struct {
	mu       sync.Mutex
	pending  []QueuedWebhook
	debounce time.Duration
	maxSize  int

	process Processor
	hooks   LifecycleHooks
	bus     *events.Bus
	logger  *zap.Logger

	timer     *time.Timer
	inFlight  atomic.Bool
	closed    atomic.Bool
}

// QueueConfig configures a Queue's pacing knobs and lifecycle hooks.
type QueueConfig struct {
	Debounce time.Duration
	MaxSize  int
	Hooks    LifecycleHooks
}

// NewQueue creates a Queue that delegates batch processing to process and
// publishes webhook:queued / webhook:batch-complete on bus.
func NewQueue(cfg QueueConfig, process Processor, bus *events.Bus, logger *zap.Logger) *Queue {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = DefaultMaxQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		debounce: cfg.Debounce,
		maxSize:  cfg.MaxSize,
		process:  process,
		hooks:    cfg.Hooks,
		bus:      bus,
		logger:   logger,
	}
}

// Enqueue appends w to the pending queue, applying the pre-queue transform
// hook if configured, then either trips immediate processing (queue at max
// size) or (re)arms the debounce timer (spec.md §4.6).
func (q *Queue) Enqueue(w QueuedWebhook) {
	if q.closed.Load() {
		return
	}

	if q.hooks.OnWebhookReceived != nil {
		transformed, ok, err := q.hooks.OnWebhookReceived(w)
		if err != nil {
			q.logger.Warn("onWebhookReceived failed, keeping original webhook", zap.Error(err))
		} else if !ok {
			q.logger.Debug("webhook dropped by onWebhookReceived", zap.String("plugin", w.PluginName))
			return
		} else {
			w = transformed
		}
	}

	q.mu.Lock()
	q.pending = append(q.pending, w)
	trip := len(q.pending) >= q.maxSize
	q.mu.Unlock()

	if q.bus != nil {
		q.bus.Publish(events.Event{Kind: events.WebhookQueued, Payload: w})
	}

	if trip {
		q.fire(context.Background())
		return
	}
	q.armTimer()
}

func (q *Queue) armTimer() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.timer == nil {
		q.timer = time.AfterFunc(q.debounce, func() { q.fire(context.Background()) })
		return
	}
	if !q.timer.Stop() {
		select {
		case <-q.timer.C:
		default:
		}
	}
	q.timer.Reset(q.debounce)
}

// fire swaps out the pending queue and runs one batch. A re-entrancy guard
// (spec.md §4.6) means a fire that lands while a batch is already in flight
// leaves its webhooks on the queue for the next tick to pick up.
func (q *Queue) fire(ctx context.Context) {
	if !q.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer q.inFlight.Store(false)

	q.mu.Lock()
	batchItems := q.pending
	q.pending = nil
	q.mu.Unlock()

	if len(batchItems) == 0 {
		return
	}

	batch := WebhookBatch{BatchID: uuid.NewString(), Webhooks: batchItems, StartedAt: graph.Now()}

	if q.hooks.OnBeforeWebhookTriggered != nil {
		if err := q.hooks.OnBeforeWebhookTriggered(ctx, &batch); err != nil {
			q.logger.Warn("onBeforeWebhookTriggered failed", zap.Error(err))
		}
	}

	for _, w := range batch.Webhooks {
		if err := q.process(ctx, w); err != nil {
			q.logger.Error("webhook handler failed", zap.String("plugin", w.PluginName), zap.Error(err))
		}
	}

	batch.CompletedAt = graph.Now()

	if q.hooks.OnAfterWebhookTriggered != nil {
		if err := q.hooks.OnAfterWebhookTriggered(ctx, batch); err != nil {
			q.logger.Warn("onAfterWebhookTriggered failed", zap.Error(err))
		}
	}

	if q.bus != nil {
		q.bus.Publish(events.Event{Kind: events.WebhookBatchDone, Payload: batch})
	}
}

// Flush forces immediate processing of any pending webhooks, used on
// graceful shutdown (spec.md §4.6). Flush does not close the queue; Close
// is what makes it refuse further enqueues.
func (q *Queue) Flush(ctx context.Context) {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()
	q.fire(ctx)
}

// Close marks the queue closed; subsequent Enqueue calls are no-ops. Call
// Flush first to process whatever was pending.
func (q *Queue) Close() {
	q.closed.Store(true)
}

// Len reports the number of webhooks currently pending, for tests and
// diagnostics.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

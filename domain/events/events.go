// Package events implements the publish-subscribe fan-out the data layer
// uses for node mutations and webhook lifecycle notifications. It is
// grounded on internal/domain/events/subscriber.go EventBus,
// generalized from a single string-keyed handler map to a typed channel
// per event kind.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Kind names the event channels the store, webhook queue, and remote sync
// client publish to.
type Kind string

const (
	NodeCreated        Kind = "node:created"
	NodeUpdated        Kind = "node:updated"
	NodeDeleted        Kind = "node:deleted"
	WebhookQueued      Kind = "webhook:queued"
	WebhookBatchDone   Kind = "webhook:batch-complete"
)

// Event is the envelope delivered to subscribers. Payload is kind-specific
// (a graph.Node for node:* kinds, a webhooks.QueuedWebhook or
// webhooks.WebhookBatch value for webhook:* kinds) and left untyped here to keep
// this package free of a dependency on the packages that emit into it.
type Event struct {
	Kind    Kind
	Payload interface{}
}

// Handler receives events synchronously on the emitting goroutine. Per
// spec.md §5, handlers must not re-enter the store's writer; a handler that
// needs to do real work should dispatch it with go.
type Handler func(Event)

// Bus is a typed, synchronous-delivery publish-subscribe fan-out. One Bus
// instance is shared by the whole process; tests construct their own via
// New so global state never leaks between cases (design note §9).
type Bus struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   *zap.Logger
}

// New creates an empty event bus.
func New(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[Kind][]Handler), logger: logger}
}

// Subscribe registers a handler for a specific event kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], h)
}

// Publish delivers an event synchronously, in subscription order, to every
// handler registered for its Kind. A panicking handler is recovered and
// logged so one bad listener cannot take down the writer that triggered it.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	hs := append([]Handler(nil), b.handlers[evt.Kind]...)
	b.mu.RUnlock()

	for _, h := range hs {
		b.safeInvoke(h, evt)
	}
}

func (b *Bus) safeInvoke(h Handler, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.String("kind", string(evt.Kind)),
				zap.Any("recovered", r))
		}
	}()
	h(evt)
}

// Reset clears every subscription. Used by tests to avoid cross-test
// bleed-through on a shared Bus.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[Kind][]Handler)
}

// Package webhooks implements the Webhook Registry & Queue (spec.md §4.6)
// and the Default Webhook Handler (spec.md §4.7). Grounded on the prior implementation's
// HandlerRegistry (application/events/handler_registry.go) for the
// map-of-name-to-handler shape and per-handler panic/error isolation,
// generalized from domain-event dispatch to inbound webhook processing.
package webhooks

import (
	"context"
	"time"

	"udl-core/actions"
	"udl-core/store"
)

// QueuedWebhook is one inbound webhook awaiting batch processing
// (spec.md §3 "Webhook records").
type QueuedWebhook struct {
	PluginName string
	RawBody    []byte
	ParsedBody map[string]interface{}
	Headers    map[string][]string
	ReceivedAt int64
}

// WebhookBatch groups every webhook processed together under one debounce
// window. BatchID correlates the batch across the lifecycle hooks and log
// lines the way commands correlate an operation across its
// handler chain with a generated operation id.
type WebhookBatch struct {
	BatchID     string
	Webhooks    []QueuedWebhook
	StartedAt   int64
	CompletedAt int64
}

// HandlerContext is what a registered Handler receives for each webhook in
// a batch.
type HandlerContext struct {
	Store   *store.Store
	Actions *actions.Actions
	Raw     []byte
	Parsed  map[string]interface{}
}

// Handler processes one webhook. Implementations must not block on network
// calls longer than the caller's context allows.
type Handler func(ctx context.Context, hc HandlerContext) error

// Registration is one plugin's webhook configuration (spec.md §4.6).
type Registration struct {
	Handler         Handler
	Description     string
	VerifySignature func(headers map[string][]string, raw []byte) bool

	// DefaultIDField is non-empty only for a Default Webhook Handler
	// registration (spec.md §4.7): it names the external-id field
	// ProcessDefault keys lookups on, and signals the Dispatcher's HTTP
	// boundary to process the webhook synchronously instead of enqueueing
	// it, so the caller gets the {upserted, wasUpdate} response of spec.md
	// §8 scenario 4 rather than a 202.
	DefaultIDField string
}

// OnWebhookReceived transforms or drops (returning ok=false) an inbound
// webhook before it is enqueued. Errors leave the original webhook intact.
type OnWebhookReceived func(w QueuedWebhook) (out QueuedWebhook, ok bool, err error)

// LifecycleHooks are the optional batch-boundary callbacks spec.md §4.6
// names. Hook errors are logged and never abort the batch.
type LifecycleHooks struct {
	OnWebhookReceived      OnWebhookReceived
	OnBeforeWebhookTriggered func(ctx context.Context, batch *WebhookBatch) error
	OnAfterWebhookTriggered  func(ctx context.Context, batch WebhookBatch) error
}

const (
	// DefaultDebounce is the default quiet period before a queued batch of
	// webhooks is processed (spec.md §4.6).
	DefaultDebounce = 5 * time.Second
	// DefaultMaxQueueSize is the default backpressure trip point.
	DefaultMaxQueueSize = 100
)

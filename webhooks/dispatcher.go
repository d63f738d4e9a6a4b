package webhooks

import (
	"context"

	"udl-core/actions"
	"udl-core/domain/graph"
	"udl-core/store"
	"udl-core/udlerrors"
)

// MaxBodyBytes is the default inbound webhook body size limit (spec.md
// §4.6 failure model: "Body too large ⇒ 413").
const MaxBodyBytes = 1 << 20

// Dispatcher ties the Registry, Queue, and Store together behind the HTTP
// boundary's single webhook intake endpoint (spec.md §6
// "POST /_webhooks/<plugin-name>/sync").
type Dispatcher struct {
	registry     *Registry
	queue        *Queue
	store        *store.Store
	maxBodyBytes int
}

// NewDispatcher builds a Dispatcher with no Queue attached yet. Callers
// construct the Queue with Dispatcher.Process as its Processor, then call
// SetQueue — the two are mutually dependent at construction time.
func NewDispatcher(reg *Registry, s *store.Store, maxBodyBytes int) *Dispatcher {
	if maxBodyBytes <= 0 {
		maxBodyBytes = MaxBodyBytes
	}
	return &Dispatcher{registry: reg, store: s, maxBodyBytes: maxBodyBytes}
}

// SetQueue attaches the Queue Receive enqueues onto.
func (d *Dispatcher) SetQueue(q *Queue) { d.queue = q }

// Receive validates and enqueues one inbound webhook, implementing the
// failure model of spec.md §4.6: unknown plugin -> KindNotFound (404);
// oversized body -> KindPayloadTooLarge (413); failed signature check ->
// KindSignatureInvalid (401), not enqueued, no side effects. A nil error
// means the webhook was queued (202).
func (d *Dispatcher) Receive(pluginName string, raw []byte, parsed map[string]interface{}, headers map[string][]string) error {
	if len(raw) > d.maxBodyBytes {
		return udlerrors.PayloadTooLarge("webhook body exceeds limit").WithResource("webhook")
	}

	reg, ok := d.registry.Lookup(pluginName)
	if !ok {
		return udlerrors.NotFound("unknown plugin: " + pluginName).WithResource("webhook")
	}

	if reg.VerifySignature != nil && !reg.VerifySignature(headers, raw) {
		return udlerrors.SignatureInvalid("webhook signature rejected").WithResource("webhook")
	}

	d.queue.Enqueue(QueuedWebhook{
		PluginName: pluginName,
		RawBody:    raw,
		ParsedBody: parsed,
		Headers:    headers,
		ReceivedAt: graph.Now(),
	})
	return nil
}

// ReceiveSync answers a Default Webhook Handler registration inline instead
// of enqueueing it, so the HTTP boundary can return the {upserted, wasUpdate}
// response of spec.md §8 scenario 4 synchronously. handled is false for any
// plugin that is not a default-handler registration, telling the caller to
// fall back to Receive's async enqueue path; handled is true whenever this
// call already produced the terminal result or error for the request,
// including the unknown-plugin and validation-failure cases.
func (d *Dispatcher) ReceiveSync(pluginName string, raw []byte, parsed map[string]interface{}, headers map[string][]string) (result UpsertResult, handled bool, err error) {
	reg, ok := d.registry.Lookup(pluginName)
	if !ok {
		return UpsertResult{}, true, udlerrors.NotFound("unknown plugin: " + pluginName).WithResource("webhook")
	}
	if reg.DefaultIDField == "" {
		return UpsertResult{}, false, nil
	}

	if len(raw) > d.maxBodyBytes {
		return UpsertResult{}, true, udlerrors.PayloadTooLarge("webhook body exceeds limit").WithResource("webhook")
	}
	if reg.VerifySignature != nil && !reg.VerifySignature(headers, raw) {
		return UpsertResult{}, true, udlerrors.SignatureInvalid("webhook signature rejected").WithResource("webhook")
	}

	payload, err := ParseDefaultPayload(parsed)
	if err != nil {
		return UpsertResult{}, true, err
	}

	hc := HandlerContext{
		Store:   d.store,
		Actions: actions.New(d.store, pluginName),
		Raw:     raw,
		Parsed:  parsed,
	}
	result, err = ProcessDefault(hc, reg.DefaultIDField, payload)
	return result, true, err
}

// Process resolves a queued webhook's registered handler and invokes it
// bound to an owner-scoped Actions façade (spec.md §4.6 "Per-webhook
// processing delegates to the registered handler"). It is the Processor
// every Queue built by this Dispatcher's owner should use.
func (d *Dispatcher) Process(ctx context.Context, w QueuedWebhook) error {
	reg, ok := d.registry.Lookup(w.PluginName)
	if !ok {
		return udlerrors.NotFound("unknown plugin: " + w.PluginName).WithResource("webhook")
	}
	hc := HandlerContext{
		Store:   d.store,
		Actions: actions.New(d.store, w.PluginName),
		Raw:     w.RawBody,
		Parsed:  w.ParsedBody,
	}
	return reg.Handler(ctx, hc)
}

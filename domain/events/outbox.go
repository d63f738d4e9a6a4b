package events

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"go.uber.org/zap"
)

// OutboxPublisher relays node mutation events onto an external EventBridge
// bus, for deployments that want other services to observe node changes
// without polling GET /_sync (spec.md §6 is the in-process contract; this
// is an optional external relay layered on top of it). Grounded on the
// infrastructure/messaging/eventbridge publisher, generalized
// from a fixed node/edge/category event catalogue to any Kind this bus
// carries.
type OutboxPublisher struct {
	client   *eventbridge.Client
	busName  string
	source   string
	logger   *zap.Logger
}

// NewOutboxPublisher builds a publisher that relays onto busName using
// source as the EventBridge "Source" field.
func NewOutboxPublisher(client *eventbridge.Client, busName, source string, logger *zap.Logger) *OutboxPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxPublisher{client: client, busName: busName, source: source, logger: logger}
}

// Attach subscribes the publisher to every Kind bus carries, so every
// locally-published event is also relayed externally. Relay failures are
// logged, never returned, since a downed EventBridge endpoint must not
// block local node mutations (spec.md §5 "handlers must not re-enter the
// store's writer").
func (p *OutboxPublisher) Attach(bus *Bus) {
	for _, kind := range []Kind{NodeCreated, NodeUpdated, NodeDeleted, WebhookQueued, WebhookBatchDone} {
		k := kind
		bus.Subscribe(k, func(e Event) { p.relay(k, e) })
	}
}

func (p *OutboxPublisher) relay(kind Kind, e Event) {
	detail, err := json.Marshal(e.Payload)
	if err != nil {
		p.logger.Warn("outbox: failed to marshal event payload", zap.String("kind", string(kind)), zap.Error(err))
		return
	}

	_, err = p.client.PutEvents(context.Background(), &eventbridge.PutEventsInput{
		Entries: []types.PutEventsRequestEntry{
			{
				EventBusName: aws.String(p.busName),
				Source:       aws.String(p.source),
				DetailType:   aws.String(string(kind)),
				Detail:       aws.String(string(detail)),
			},
		},
	})
	if err != nil {
		p.logger.Warn("outbox: eventbridge publish failed", zap.String("kind", string(kind)), zap.Error(err))
	}
}

// Package remotesync implements the Remote Sync Client (spec.md §4.8): a
// two-phase bootstrap (reachability probe + initial pull) followed by a
// live WebSocket subscription with bounded-backoff reconnect. Grounded on
// interfaces/websocket/client.go Client (read/write pump
// shape) and internal/middleware/circuit_breaker.go (sony/gobreaker usage),
// generalized from an inbound hub-managed connection to an outbound
// peer-initiated one that also makes plain HTTP calls for bootstrap.
package remotesync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"udl-core/domain/graph"
	"udl-core/store"
	"udl-core/udlerrors"
)

// tracer emits spans around the two outbound HTTP calls in this package's
// bootstrap path (spec.md §4.8's probe and initial pull), grounded on the
// internal/infrastructure/observability tracer-per-package
// convention. A process with no tracer provider configured
// (internal/observability.Setup with an empty endpoint) gets a no-op
// tracer here, so this import adds no behavior by default.
var tracer = otel.Tracer("udl-core/remotesync")

// State names the Remote Sync Client's connection lifecycle (spec.md §5
// design note on the reconnect state machine).
type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateBackoff    State = "backoff"
	StateClosed     State = "closed"
)

// WebhookRelay lets an inbound webhook:queued frame re-enqueue locally
// (spec.md §4.8 "may invoke an onWebhookReceived relay").
type WebhookRelay func(pluginName string, parsed map[string]interface{})

// Config configures one Remote Sync Client instance.
type Config struct {
	BaseURL              string
	HealthTimeout        time.Duration
	ReconnectDelay        time.Duration
	MaxReconnectAttempts int
	OnWebhookReceived     WebhookRelay
}

// Client bootstraps from and then stays live-synced with a peer UDL
// process.
type Client struct {
	cfg     Config
	store   *store.Store
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger

	state atomic.Value
}

// New builds a Client bound to a local store. The circuit breaker wraps
// Probe only and trips after consecutive probe failures so a persistently
// unreachable peer is not probed on every call; Pull and the WebSocket
// reconnect loop do not go through it (grounded on gobreaker wiring
// for downstream AWS calls, generalized to an HTTP peer).
func New(cfg Config, s *store.Store, logger *zap.Logger) *Client {
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "remotesync:" + cfg.BaseURL,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	c := &Client{
		cfg:     cfg,
		store:   s,
		http:    &http.Client{Timeout: cfg.HealthTimeout},
		breaker: breaker,
		logger:  logger,
	}
	c.setState(StateIdle)
	return c
}

func (c *Client) setState(s State) { c.state.Store(s) }

// State returns the client's current lifecycle state.
func (c *Client) State() State {
	v, _ := c.state.Load().(State)
	if v == "" {
		return StateIdle
	}
	return v
}

// Probe checks reachability via GET /health (spec.md §4.8). It returns
// nil only on a 200 response within the configured timeout.
func (c *Client) Probe(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "remotesync.Probe")
	defer span.End()

	_, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/health", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, udlerrors.RemoteUnreachable("health probe failed", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, udlerrors.RemoteUnreachable(fmt.Sprintf("health probe returned %d", resp.StatusCode), nil)
		}
		return nil, nil
	})
	return err
}

// syncPullResponse is the body shape of GET /_sync?since=... (spec.md §4.8).
type syncPullResponse struct {
	Updated []graph.Node `json:"updated"`
	Deleted []string     `json:"deleted"`
}

// Pull performs the initial bootstrap pull, applying every updated node and
// deleted id directly into the local store.
func (c *Client) Pull(ctx context.Context, since time.Time) error {
	ctx, span := tracer.Start(ctx, "remotesync.Pull")
	defer span.End()

	u := c.cfg.BaseURL + "/_sync?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return udlerrors.RemoteUnreachable("initial pull failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return udlerrors.RemoteUnreachable(fmt.Sprintf("initial pull returned %d: %s", resp.StatusCode, body), nil)
	}

	var payload syncPullResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return udlerrors.Internal("decoding sync pull response", err)
	}

	for _, n := range payload.Updated {
		if err := c.store.Put(n); err != nil {
			c.logger.Warn("skipping node from initial pull", zap.String("id", n.Internal.ID), zap.Error(err))
		}
	}
	for _, id := range payload.Deleted {
		c.store.Delete(id, store.DeleteOptions{Cascade: false})
	}
	return nil
}

// wsURL derives the peer's WebSocket URL from its HTTP base URL (spec.md
// §4.8 "scheme derived from base URL: http→ws, https→wss").
func (c *Client) wsURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// Run bootstraps (probe + pull) then holds a live WebSocket subscription
// open, reconnecting with bounded backoff until ctx is cancelled or the
// attempt budget is exhausted (spec.md §4.8). It returns nil on a clean
// shutdown and a RemoteUnreachable error once reconnection is exhausted;
// callers typically log the error and keep serving from local state, since
// the initial pull already left the store in a valid state.
func (c *Client) Run(ctx context.Context) error {
	if err := c.Probe(ctx); err != nil {
		c.logger.Warn("remote unreachable, skipping sync", zap.Error(err))
		return nil
	}

	if err := c.Pull(ctx, time.Unix(0, 0)); err != nil {
		c.logger.Warn("initial pull failed", zap.Error(err))
	}

	attempts := 0
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		default:
		}

		c.setState(StateConnecting)
		err := c.subscribeOnce(ctx)
		if err == nil {
			attempts = 0
			delay = c.cfg.ReconnectDelay
			continue
		}
		if ctx.Err() != nil {
			c.setState(StateClosed)
			return nil
		}

		attempts++
		c.logger.Warn("websocket subscription dropped", zap.Error(err), zap.Int("attempt", attempts))
		if attempts >= c.cfg.MaxReconnectAttempts {
			c.setState(StateClosed)
			return udlerrors.RemoteUnreachable("reconnect attempts exhausted", err)
		}

		c.setState(StateBackoff)
		select {
		case <-ctx.Done():
			c.setState(StateClosed)
			return nil
		case <-time.After(delay):
		}
		delay *= 2
	}
}

// inboundFrame mirrors the JSON envelope GET /ws emits (spec.md §6
// "{ type, payload, timestamp }").
type inboundFrame struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func (c *Client) subscribeOnce(ctx context.Context) error {
	target, err := c.wsURL()
	if err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.HealthTimeout)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, target, nil)
	if err != nil {
		return udlerrors.RemoteUnreachable("websocket dial failed", err)
	}
	defer conn.Close()

	c.setState(StateOpen)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return udlerrors.RemoteUnreachable("websocket read failed", err)
		}
		c.handleFrame(raw)
	}
}

func (c *Client) handleFrame(raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.logger.Warn("dropping malformed inbound frame", zap.Error(err))
		return
	}

	switch frame.Type {
	case "node:updated":
		var n graph.Node
		if err := json.Unmarshal(frame.Payload, &n); err != nil {
			c.logger.Warn("dropping malformed node:updated frame", zap.Error(err))
			return
		}
		if err := c.store.Put(n); err != nil {
			c.logger.Warn("rejecting inbound node", zap.String("id", n.Internal.ID), zap.Error(err))
		}

	case "node:deleted":
		var id string
		if err := json.Unmarshal(frame.Payload, &id); err != nil {
			c.logger.Warn("dropping malformed node:deleted frame", zap.Error(err))
			return
		}
		c.store.Delete(id, store.DeleteOptions{Cascade: false})

	case "webhook:queued":
		if c.cfg.OnWebhookReceived == nil {
			return
		}
		var relayed struct {
			PluginName string                 `json:"pluginName"`
			ParsedBody map[string]interface{} `json:"parsedBody"`
		}
		if err := json.Unmarshal(frame.Payload, &relayed); err != nil {
			c.logger.Warn("dropping malformed webhook:queued frame", zap.Error(err))
			return
		}
		c.cfg.OnWebhookReceived(relayed.PluginName, relayed.ParsedBody)

	default:
		c.logger.Debug("ignoring unknown frame type", zap.String("type", frame.Type))
	}
}

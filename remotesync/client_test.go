package remotesync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/domain/events"
	"udl-core/domain/graph"
	"udl-core/store"
)

func TestProbeSucceedsOnHealthyPeer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: srv.URL}, s, nil)
	require.NoError(t, c.Probe(context.Background()))
}

func TestProbeFailsOnUnreachablePeer(t *testing.T) {
	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: "http://127.0.0.1:1"}, s, nil)
	err := c.Probe(context.Background())
	require.Error(t, err)
}

func TestPullAppliesUpdatedAndDeleted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"updated": []map[string]interface{}{
				{
					"internal": map[string]interface{}{
						"id": "a1", "type": "Article", "owner": "cms",
						"contentDigest": "x", "createdAt": 1, "modifiedAt": 1,
					},
					"fields": map[string]interface{}{"title": "Hi"},
				},
			},
			"deleted": []string{"gone"},
		})
	}))
	defer srv.Close()

	s := store.New(events.New(nil), nil)
	require.NoError(t, s.Put(graph.Node{
		Internal: graph.Internal{ID: "gone", Type: "Article", Owner: "cms", ContentDigest: "x", CreatedAt: 1, ModifiedAt: 1},
		Fields:   map[string]interface{}{},
	}))

	c := New(Config{BaseURL: srv.URL}, s, nil)
	require.NoError(t, c.Pull(context.Background(), time.Unix(0, 0)))

	n, ok := s.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "Hi", n.Fields["title"])

	_, ok = s.Get("gone")
	assert.False(t, ok)
}

func TestWsURLDerivesSchemeFromBaseURL(t *testing.T) {
	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: "https://peer.example/api"}, s, nil)
	u, err := c.wsURL()
	require.NoError(t, err)
	assert.Equal(t, "wss://peer.example/api/ws", u)

	c2 := New(Config{BaseURL: "http://peer.example"}, s, nil)
	u2, err := c2.wsURL()
	require.NoError(t, err)
	assert.Equal(t, "ws://peer.example/ws", u2)
}

func TestHandleFrameAppliesNodeUpdatedAndDeleted(t *testing.T) {
	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: "http://unused"}, s, nil)

	updated, _ := json.Marshal(map[string]interface{}{
		"type": "node:updated",
		"payload": map[string]interface{}{
			"internal": map[string]interface{}{
				"id": "a1", "type": "Article", "owner": "cms",
				"contentDigest": "x", "createdAt": 1, "modifiedAt": 1,
			},
			"fields": map[string]interface{}{"title": "Hi"},
		},
	})
	c.handleFrame(updated)
	_, ok := s.Get("a1")
	require.True(t, ok)

	deleted, _ := json.Marshal(map[string]interface{}{
		"type":    "node:deleted",
		"payload": "a1",
	})
	c.handleFrame(deleted)
	_, ok = s.Get("a1")
	assert.False(t, ok)
}

func TestHandleFrameRelaysWebhookQueued(t *testing.T) {
	s := store.New(events.New(nil), nil)
	var gotPlugin string
	var gotBody map[string]interface{}
	c := New(Config{
		BaseURL: "http://unused",
		OnWebhookReceived: func(pluginName string, parsed map[string]interface{}) {
			gotPlugin = pluginName
			gotBody = parsed
		},
	}, s, nil)

	frame, _ := json.Marshal(map[string]interface{}{
		"type": "webhook:queued",
		"payload": map[string]interface{}{
			"pluginName": "demo",
			"parsedBody": map[string]interface{}{"a": 1.0},
		},
	})
	c.handleFrame(frame)
	assert.Equal(t, "demo", gotPlugin)
	assert.Equal(t, 1.0, gotBody["a"])
}

func TestRunExitsCleanlyWhenPeerUnreachable(t *testing.T) {
	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: "http://127.0.0.1:1", ReconnectDelay: time.Millisecond, MaxReconnectAttempts: 1}, s, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx), "an unreachable peer skips sync rather than erroring")
}

func TestSubscribeOnceReceivesFrames(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		frame, _ := json.Marshal(map[string]interface{}{
			"type": "node:updated",
			"payload": map[string]interface{}{
				"internal": map[string]interface{}{
					"id": "ws1", "type": "Article", "owner": "cms",
					"contentDigest": "x", "createdAt": 1, "modifiedAt": 1,
				},
				"fields": map[string]interface{}{},
			},
		})
		conn.WriteMessage(websocket.TextMessage, frame)
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	s := store.New(events.New(nil), nil)
	c := New(Config{BaseURL: "http" + srv.URL[len("http"):]}, s, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_ = c.subscribeOnce(ctx)

	_, ok := s.Get("ws1")
	assert.True(t, ok)
}

package httpapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"udl-core/domain/graph"
	"udl-core/udlerrors"
)

// maxWebhookBody caps inbound webhook bodies (spec.md §5 "HTTP request
// body reads are bounded by a max-size (default 1 MiB)").
const maxWebhookBody = 1 << 20

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type syncResponse struct {
	Updated []graph.Node `json:"updated"`
	Deleted []string     `json:"deleted"`
}

// handleSync implements GET /_sync?since=<iso8601> (spec.md §6).
func (rt *Router) handleSync(w http.ResponseWriter, r *http.Request) {
	since := time.Unix(0, 0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, udlerrors.Validation("since must be an ISO-8601 timestamp"))
			return
		}
		since = parsed
	}
	sinceMillis := since.UnixMilli()

	deletedEntries := rt.store.DeletionLog().Since(sinceMillis, "")
	deleted := make([]string, 0, len(deletedEntries))
	for _, e := range deletedEntries {
		deleted = append(deleted, e.NodeID)
	}

	writeJSON(w, http.StatusOK, syncResponse{
		Updated: rt.store.ModifiedSince(sinceMillis),
		Deleted: deleted,
	})
}

// handleWebSocket implements GET /ws (spec.md §6).
func (rt *Router) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		rt.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	rt.hub.Register(r.Context(), conn)
}

// handleWebhookIntake implements POST /_webhooks/{plugin}/sync (spec.md
// §4.6, §6). Plugin name may be percent-encoded with a scope prefix.
func (rt *Router) handleWebhookIntake(w http.ResponseWriter, r *http.Request) {
	pluginName, err := url.PathUnescape(chi.URLParam(r, "plugin"))
	if err != nil {
		writeError(w, udlerrors.Validation("malformed plugin path segment"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, udlerrors.PayloadTooLarge("webhook body exceeds limit"))
		return
	}

	var parsed map[string]interface{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &parsed); err != nil {
			writeError(w, udlerrors.Validation("malformed JSON body"))
			return
		}
	}

	// Default Webhook Handler registrations answer inline (spec.md §8
	// scenario 4); every other plugin falls back to the debounced queue.
	result, handled, err := rt.dispatcher.ReceiveSync(pluginName, raw, parsed, r.Header)
	if handled {
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	if err := rt.dispatcher.Receive(pluginName, raw, parsed, r.Header); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"queued": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, udlerrors.HTTPStatus(err), map[string]string{"error": err.Error()})
}

package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/go-playground/validator/v10"

	"udl-core/actions"
	"udl-core/udlerrors"
)

// payloadValidator runs the declarative checks on DefaultPayload that a
// hand-rolled switch would otherwise re-derive per field (spec.md §4.7).
// One validator instance is safe for concurrent use and is reused across
// every webhook intake.
var payloadValidator = validator.New()

// DefaultPayload is the canonical shape the Default Webhook Handler accepts
// (spec.md §4.7).
type DefaultPayload struct {
	Operation string                 `json:"operation" validate:"required,oneof=create update upsert delete"`
	NodeID    interface{}            `json:"nodeId"`
	NodeType  string                 `json:"nodeType" validate:"required"`
	Data      map[string]interface{} `json:"data" validate:"required_unless=Operation delete"`
}

// UpsertResult reports which branch ProcessDefault took, mirroring spec.md
// §8 scenario 4's {upserted, wasUpdate} synchronous response shape.
type UpsertResult struct {
	Upserted  bool `json:"upserted"`
	WasUpdate bool `json:"wasUpdate"`
}

// InternalID deterministically derives the internal node id the default
// handler stamps for a given (nodeType, externalId) pair, so repeated
// create/upsert calls for the same external id always collide on the same
// internal node (spec.md §4.7 "synthesize an internal id (deterministic
// hash of nodeType + externalId)").
func InternalID(nodeType string, externalID interface{}) string {
	sum := sha256.Sum256([]byte(nodeType + "\x00" + fmt.Sprint(externalID)))
	return hex.EncodeToString(sum[:])[:32]
}

// ParseDefaultPayload decodes the canonical default-handler body and runs
// it through payloadValidator: operation must be one of the four
// recognized kinds, nodeType is always required, and data is required for
// every operation except delete (spec.md §4.7).
func ParseDefaultPayload(parsed map[string]interface{}) (DefaultPayload, error) {
	op, _ := parsed["operation"].(string)
	nodeType, _ := parsed["nodeType"].(string)
	payload := DefaultPayload{
		Operation: op,
		NodeID:    parsed["nodeId"],
		NodeType:  nodeType,
	}
	if data, ok := parsed["data"].(map[string]interface{}); ok {
		payload.Data = data
	}

	if err := payloadValidator.Struct(payload); err != nil {
		return DefaultPayload{}, udlerrors.Validation(fieldErrorMessage(err)).WithResource("webhook")
	}
	return payload, nil
}

// fieldErrorMessage reduces a validator.ValidationErrors to a single
// human-readable message naming the first failing field, since webhook
// intake callers only need to know what to fix, not every violation.
func fieldErrorMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid webhook payload"
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_unless":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}

// NewDefaultHandler adapts ProcessDefault into a Handler for plugins that
// want default create/update/upsert/delete semantics run through the
// debounced queue rather than answered synchronously.
func NewDefaultHandler(idField string) Handler {
	return func(ctx context.Context, hc HandlerContext) error {
		payload, err := ParseDefaultPayload(hc.Parsed)
		if err != nil {
			return err
		}
		_, err = ProcessDefault(hc, idField, payload)
		return err
	}
}

// DefaultRegistration builds the Registration for a plugin that wants the
// Default Webhook Handler (spec.md §4.7). DefaultIDField is set so the
// Dispatcher's HTTP boundary answers synchronously (spec.md §8 scenario
// 4) instead of routing through the async queue Handler would otherwise
// run on.
func DefaultRegistration(idField string) Registration {
	return Registration{
		Handler:        NewDefaultHandler(idField),
		Description:    "default create/update/upsert/delete handler",
		DefaultIDField: idField,
	}
}

// ProcessDefault runs one default-handler operation synchronously, used
// directly by the HTTP boundary for the default handler's immediate
// 200/404/409 responses (spec.md §4.7, §8 scenario 4), and internally by
// NewDefaultHandler when the default handler is run through the queue
// instead.
func ProcessDefault(hc HandlerContext, idField string, payload DefaultPayload) (UpsertResult, error) {
	switch payload.Operation {
	case "create":
		err := defaultCreate(hc, idField, payload)
		return UpsertResult{Upserted: err == nil}, err
	case "update":
		return UpsertResult{}, defaultUpdate(hc, idField, payload)
	case "upsert":
		return defaultUpsert(hc, idField, payload)
	case "delete":
		return UpsertResult{}, defaultDelete(hc, idField, payload)
	default:
		return UpsertResult{}, udlerrors.Validation("unknown operation: " + payload.Operation).WithResource("webhook")
	}
}

func externalIDOf(idField string, payload DefaultPayload) interface{} {
	if v, ok := payload.Data[idField]; ok && v != nil {
		return v
	}
	return payload.NodeID
}

func findByExternalID(hc HandlerContext, idField string, payload DefaultPayload) (string, bool) {
	externalID := externalIDOf(idField, payload)
	matches := hc.Store.GetByField(payload.NodeType, idField, externalID)
	if len(matches) == 0 {
		return "", false
	}
	return matches[0].Internal.ID, true
}

func defaultCreate(hc HandlerContext, idField string, payload DefaultPayload) error {
	if _, exists := findByExternalID(hc, idField, payload); exists {
		return udlerrors.AlreadyExists("node already exists for " + idField).WithResource("webhook")
	}
	id := InternalID(payload.NodeType, externalIDOf(idField, payload))
	_, err := hc.Actions.CreateNode(actions.CreateInput{ID: id, Type: payload.NodeType, Fields: payload.Data})
	return err
}

func defaultUpdate(hc HandlerContext, idField string, payload DefaultPayload) error {
	id, exists := findByExternalID(hc, idField, payload)
	if !exists {
		return udlerrors.NotFound("no node matches " + idField).WithResource("webhook")
	}
	existing, _ := hc.Actions.GetNode(id)
	_, err := hc.Actions.CreateNode(actions.CreateInput{ID: id, Type: existing.Internal.Type, Fields: payload.Data})
	return err
}

func defaultUpsert(hc HandlerContext, idField string, payload DefaultPayload) (UpsertResult, error) {
	if _, exists := findByExternalID(hc, idField, payload); exists {
		return UpsertResult{Upserted: true, WasUpdate: true}, defaultUpdate(hc, idField, payload)
	}
	return UpsertResult{Upserted: true, WasUpdate: false}, defaultCreate(hc, idField, payload)
}

func defaultDelete(hc HandlerContext, idField string, payload DefaultPayload) error {
	id, exists := findByExternalID(hc, idField, payload)
	if !exists {
		return udlerrors.NotFound("no node matches " + idField).WithResource("webhook")
	}
	if ok := hc.Actions.DeleteNode(actions.DeleteInput{ID: id}, false); !ok {
		return udlerrors.NotFound("node vanished before delete: " + id).WithResource("webhook")
	}
	return nil
}

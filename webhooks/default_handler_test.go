package webhooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/actions"
	"udl-core/domain/events"
	"udl-core/store"
	"udl-core/udlerrors"
)

func newTestHandlerContext(owner string) (HandlerContext, *store.Store) {
	s := store.New(events.New(nil), nil)
	s.RegisterIndex("Product", "externalId")
	return HandlerContext{Store: s, Actions: actions.New(s, owner)}, s
}

func TestDefaultHandlerCreateThenDuplicateFails(t *testing.T) {
	hc, _ := newTestHandlerContext("demo")
	payload := DefaultPayload{
		Operation: "create",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": 42.0, "title": "A"},
	}

	_, err := ProcessDefault(hc, "externalId", payload)
	require.NoError(t, err)

	_, err = ProcessDefault(hc, "externalId", payload)
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindAlreadyExists))
}

func TestDefaultHandlerUpdateMissingFails(t *testing.T) {
	hc, _ := newTestHandlerContext("demo")
	payload := DefaultPayload{
		Operation: "update",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": 1, "title": "A"},
	}
	_, err := ProcessDefault(hc, "externalId", payload)
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindNotFound))
}

func TestDefaultHandlerUpsertReportsCreateThenUpdate(t *testing.T) {
	hc, s := newTestHandlerContext("demo")
	payload := DefaultPayload{
		Operation: "upsert",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": 42, "title": "A"},
	}

	res, err := ProcessDefault(hc, "externalId", payload)
	require.NoError(t, err)
	assert.True(t, res.Upserted)
	assert.False(t, res.WasUpdate)

	payload.Data["title"] = "B"
	res, err = ProcessDefault(hc, "externalId", payload)
	require.NoError(t, err)
	assert.True(t, res.Upserted)
	assert.True(t, res.WasUpdate)

	matches := s.GetByField("Product", "externalId", 42)
	require.Len(t, matches, 1)
	assert.Equal(t, "B", matches[0].Fields["title"])
}

func TestDefaultHandlerNumericStringCoercion(t *testing.T) {
	hc, _ := newTestHandlerContext("demo")
	create := DefaultPayload{
		Operation: "create",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": 42.0, "title": "A"},
	}
	_, err := ProcessDefault(hc, "externalId", create)
	require.NoError(t, err)

	dup := DefaultPayload{
		Operation: "create",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": "42", "title": "B"},
	}
	_, err = ProcessDefault(hc, "externalId", dup)
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindAlreadyExists))
}

func TestDefaultHandlerDelete(t *testing.T) {
	hc, s := newTestHandlerContext("demo")
	create := DefaultPayload{
		Operation: "create",
		NodeType:  "Product",
		Data:      map[string]interface{}{"externalId": 7, "title": "A"},
	}
	_, err := ProcessDefault(hc, "externalId", create)
	require.NoError(t, err)

	del := DefaultPayload{Operation: "delete", NodeType: "Product", Data: map[string]interface{}{"externalId": 7}}
	_, err = ProcessDefault(hc, "externalId", del)
	require.NoError(t, err)

	assert.Empty(t, s.GetByField("Product", "externalId", 7))
}

func TestParseDefaultPayloadRejectsMissingData(t *testing.T) {
	_, err := ParseDefaultPayload(map[string]interface{}{"operation": "create", "nodeType": "Product"})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindValidation))
}

func TestParseDefaultPayloadAllowsMissingDataOnDelete(t *testing.T) {
	p, err := ParseDefaultPayload(map[string]interface{}{
		"operation": "delete", "nodeType": "Product", "nodeId": 7,
	})
	require.NoError(t, err)
	assert.Equal(t, "delete", p.Operation)
}

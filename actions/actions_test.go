package actions

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/domain/events"
	"udl-core/domain/graph"
	"udl-core/store"
	"udl-core/udlerrors"
)

func newTestActions(owner string) (*Actions, *store.Store) {
	s := store.New(events.New(nil), nil)
	return New(s, owner), s
}

func TestCreateNodeStampsOwnerRegardlessOfInput(t *testing.T) {
	a, _ := newTestActions("shop")
	n, err := a.CreateNode(CreateInput{ID: "p1", Type: "Product", Fields: map[string]interface{}{"name": "Widget"}})
	require.NoError(t, err)
	assert.Equal(t, "shop", n.Internal.Owner)

	got, ok := a.GetNode("p1")
	require.True(t, ok)
	assert.Equal(t, "shop", got.Internal.Owner)
}

func TestCreateNodeMissingIDIsValidationError(t *testing.T) {
	a, _ := newTestActions("shop")
	_, err := a.CreateNode(CreateInput{Type: "Product"})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindValidation))
}

func TestExtendPreservesInternalEnvelope(t *testing.T) {
	a, _ := newTestActions("shop")
	created, err := a.CreateNode(CreateInput{ID: "p1", Type: "Product", Fields: map[string]interface{}{"price": 10}})
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	updated, err := a.ExtendNode("p1", map[string]interface{}{"category": "toys"})
	require.NoError(t, err)

	assert.Equal(t, created.Internal.ID, updated.Internal.ID)
	assert.Equal(t, created.Internal.Type, updated.Internal.Type)
	assert.Equal(t, created.Internal.Owner, updated.Internal.Owner)
	assert.Equal(t, created.Internal.CreatedAt, updated.Internal.CreatedAt)
	assert.Equal(t, 10, updated.Fields["price"])
	assert.Equal(t, "toys", updated.Fields["category"])
	assert.Greater(t, updated.Internal.ModifiedAt, created.Internal.ModifiedAt-1)
}

func TestExtendRejectsProtectedFields(t *testing.T) {
	a, _ := newTestActions("shop")
	_, err := a.CreateNode(CreateInput{ID: "p1", Type: "Product"})
	require.NoError(t, err)

	_, err = a.ExtendNode("p1", map[string]interface{}{"parent": "x"})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindValidation))
}

func TestExtendNotFound(t *testing.T) {
	a, _ := newTestActions("shop")
	_, err := a.ExtendNode("nope", map[string]interface{}{"a": 1})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindNotFound))
}

func TestDeleteNodeWritesDeletionLog(t *testing.T) {
	a, s := newTestActions("shop")
	_, err := a.CreateNode(CreateInput{ID: "p1", Type: "Product"})
	require.NoError(t, err)

	ok := a.DeleteNode(DeleteInput{ID: "p1"}, false)
	assert.True(t, ok)
	assert.Len(t, s.DeletionLog().Since(0, ""), 1)
}

func TestGetNodesScansEveryTypeWithOptionalPredicate(t *testing.T) {
	a, _ := newTestActions("shop")
	_, err := a.CreateNode(CreateInput{ID: "p1", Type: "Product", Fields: map[string]interface{}{"price": 10}})
	require.NoError(t, err)
	_, err = a.CreateNode(CreateInput{ID: "c1", Type: "Customer", Fields: map[string]interface{}{"name": "Ada"}})
	require.NoError(t, err)

	all := a.GetNodes(nil)
	assert.Len(t, all, 2)

	products := a.GetNodes(func(n graph.Node) bool { return n.Internal.Type == "Product" })
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].Internal.ID)
}

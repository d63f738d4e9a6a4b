package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/domain/graph"
)

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir, nil)
	ctx := context.Background()

	env := Envelope{
		Nodes: []graph.Node{
			{
				Internal: graph.Internal{ID: "p1", Type: "Product", Owner: "shop", ContentDigest: "abc"},
				Fields:   map[string]interface{}{"name": "Widget"},
			},
		},
		Indexes: map[string][]string{"Product": {"name"}},
		Meta:    Meta{Version: CurrentVersion, CreatedAt: 1, UpdatedAt: 1},
	}

	require.NoError(t, fs.Save(ctx, "shop", env))

	loaded, ok, err := fs.Load(ctx, "shop")
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "p1", loaded.Nodes[0].Internal.ID)
	assert.Equal(t, "Widget", loaded.Nodes[0].Fields["name"])
	assert.Equal(t, []string{"name"}, loaded.Indexes["Product"])
}

func TestFileStorageLoadAbsentIsEmpty(t *testing.T) {
	fs := NewFileStorage(t.TempDir(), nil)
	_, ok, err := fs.Load(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStorageLoadVersionMismatchIsEmpty(t *testing.T) {
	dir := t.TempDir()
	fs := NewFileStorage(dir, nil)
	ctx := context.Background()
	env := Envelope{Meta: Meta{Version: CurrentVersion + 1}}
	require.NoError(t, fs.Save(ctx, "shop", env))

	_, ok, err := fs.Load(ctx, "shop")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBreakCyclesRescuesSelfReferentialMap(t *testing.T) {
	m := map[string]interface{}{"name": "x"}
	m["self"] = m

	safe := breakCycles(m).(map[string]interface{})
	assert.Equal(t, "x", safe["name"])
	assert.Equal(t, cycleSentinel, safe["self"])
}

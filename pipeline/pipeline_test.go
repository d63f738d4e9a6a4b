package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/actions"
	"udl-core/domain/events"
	"udl-core/store"
	"udl-core/store/cache"
)

func TestPipelineSourcesPluginsInOrder(t *testing.T) {
	s := store.New(events.New(nil), nil)
	caches := cache.NewFileStorage(t.TempDir(), nil)
	p := New(s, caches, nil)

	var order []string
	p.Register(Plugin{
		Name:     "first",
		Strategy: StrategyRefetch,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			order = append(order, "first")
			_, err := rt.Actions.CreateNode(actions.CreateInput{ID: "a1", Type: "Article"})
			return err
		},
	})
	p.Register(Plugin{
		Name:     "second",
		Strategy: StrategyRefetch,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			order = append(order, "second")
			if _, ok := s.Get("a1"); !ok {
				t.Error("second plugin ran before first plugin's node was visible")
			}
			return nil
		},
	})

	p.Run(context.Background())
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestRefetchReconcileDeletesDroppedNodes(t *testing.T) {
	s := store.New(events.New(nil), nil)
	caches := cache.NewFileStorage(t.TempDir(), nil)
	p := New(s, caches, nil)

	firstRun := true
	p.Register(Plugin{
		Name:     "cms",
		Strategy: StrategyRefetch,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			if _, err := rt.Actions.CreateNode(actions.CreateInput{ID: "keep", Type: "Article"}); err != nil {
				return err
			}
			if firstRun {
				_, err := rt.Actions.CreateNode(actions.CreateInput{ID: "drop-me", Type: "Article"})
				return err
			}
			return nil
		},
	})

	p.Run(context.Background())
	_, ok := s.Get("drop-me")
	require.True(t, ok)

	firstRun = false
	p.Run(context.Background())
	_, ok = s.Get("drop-me")
	assert.False(t, ok, "node absent from the second refetch run should be deleted")

	_, ok = s.Get("keep")
	assert.True(t, ok)
}

func TestPluginSourceFailureDoesNotAbortOthers(t *testing.T) {
	s := store.New(events.New(nil), nil)
	caches := cache.NewFileStorage(t.TempDir(), nil)
	p := New(s, caches, nil)

	p.Register(Plugin{
		Name:     "broken",
		Strategy: StrategySync,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			return assert.AnError
		},
	})
	ran := false
	p.Register(Plugin{
		Name:     "healthy",
		Strategy: StrategySync,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			ran = true
			return nil
		},
	})

	p.Run(context.Background())
	assert.True(t, ran)
}

func TestHydrateReplaysCache(t *testing.T) {
	dir := t.TempDir()
	s1 := store.New(events.New(nil), nil)
	caches := cache.NewFileStorage(dir, nil)
	p1 := New(s1, caches, nil)
	p1.Register(Plugin{
		Name:     "cms",
		Strategy: StrategyRefetch,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			_, err := rt.Actions.CreateNode(actions.CreateInput{ID: "a1", Type: "Article"})
			return err
		},
	})
	p1.Run(context.Background())

	s2 := store.New(events.New(nil), nil)
	p2 := New(s2, caches, nil)
	p2.Register(Plugin{
		Name:     "cms",
		Strategy: StrategyRefetch,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			return nil
		},
	})
	p2.Run(context.Background())

	n, ok := s2.Get("a1")
	require.True(t, ok)
	assert.Equal(t, "cms", n.Internal.Owner)
}

func TestSyncStrategyNeverReconciles(t *testing.T) {
	s := store.New(events.New(nil), nil)
	caches := cache.NewFileStorage(t.TempDir(), nil)
	p := New(s, caches, nil)

	run := 0
	p.Register(Plugin{
		Name:     "events",
		Strategy: StrategySync,
		SourceNodes: func(ctx context.Context, rt *Runtime) error {
			run++
			if run == 1 {
				_, err := rt.Actions.CreateNode(actions.CreateInput{ID: "e1", Type: "Event"})
				return err
			}
			return nil
		},
	})

	p.Run(context.Background())
	p.Run(context.Background())

	_, ok := s.Get("e1")
	assert.True(t, ok, "sync strategy must not delete nodes absent from a later run")
}

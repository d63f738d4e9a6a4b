// Package pipeline implements the Source Pipeline (spec.md §4.5): the
// plugin lifecycle runner that hydrates each plugin's cache, invokes its
// SourceNodes hook, reconciles refetch deltas against the live store, and
// persists the result. Grounded on GraphLoader
// (application/services/graph_loader.go) for the "load-then-reconcile"
// shape, generalized from loading one graph's nodes/edges to running an
// arbitrary plugin's sourcing hook.
package pipeline

import "context"

// Strategy selects how a plugin's source step relates to the live store.
type Strategy string

const (
	// StrategySync means SourceNodes emits deltas only; the plugin tracks
	// its own cursor in its own state.
	StrategySync Strategy = "sync"
	// StrategyRefetch means SourceNodes produces a full snapshot each run;
	// the pipeline diffs live-owned nodes against nodes touched this run
	// to compute deletions.
	StrategyRefetch Strategy = "refetch"
)

// Index is a (type, field) pair a plugin wants the store to maintain.
type Index struct {
	Type  string
	Field string
}

// Plugin is the contract every source plugin implements (spec.md §4.5).
type Plugin struct {
	Name     string
	Strategy Strategy
	Indexes  []Index
	// IDField, if set, is the external-id field on this plugin's nodes,
	// used by the default webhook handler (spec.md §4.7) when the plugin
	// registers no custom webhook handler.
	IDField string

	// SourceNodes is invoked with an owner-bound Actions façade. It is
	// free to make network calls, compute nodes, and mutate the store.
	SourceNodes func(ctx context.Context, rt *Runtime) error
}

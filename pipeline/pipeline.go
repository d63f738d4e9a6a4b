package pipeline

import (
	"context"

	"go.uber.org/zap"

	"udl-core/actions"
	"udl-core/domain/graph"
	"udl-core/store"
	"udl-core/store/cache"
	"udl-core/udlerrors"
)

// Runtime is what a plugin's SourceNodes hook receives: an owner-bound
// Actions façade plus a logger scoped to the plugin's name.
type Runtime struct {
	Actions *actions.Actions
	Logger  *zap.Logger
}

// Pipeline runs every registered plugin's lifecycle in configuration
// order (spec.md §4.5 "Ordering"): each plugin's source runs to completion
// before the next begins, so cross-plugin references are resolvable on
// first boot.
type Pipeline struct {
	store   *store.Store
	caches  cache.Storage
	logger  *zap.Logger
	plugins []Plugin
}

// New creates a pipeline bound to a store and cache backend.
func New(s *store.Store, caches cache.Storage, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{store: s, caches: caches, logger: logger}
}

// Register adds a plugin to the pipeline in the order given; Run executes
// them in this same order.
func (p *Pipeline) Register(plugin Plugin) {
	p.plugins = append(p.plugins, plugin)
}

// Run executes the full lifecycle — hydrate, source, reconcile, persist —
// for every registered plugin in order. A plugin's source failure is
// logged and does not abort the others; its partially-sourced state
// remains in the store (spec.md §4.5 "Ordering").
func (p *Pipeline) Run(ctx context.Context) {
	for _, plugin := range p.plugins {
		p.runOne(ctx, plugin)
	}
}

func (p *Pipeline) runOne(ctx context.Context, plugin Plugin) {
	logger := p.logger.With(zap.String("plugin", plugin.Name))

	beforeIDs := p.hydrate(ctx, plugin, logger)

	rt := &Runtime{Actions: actions.New(p.store, plugin.Name), Logger: logger}
	if err := plugin.SourceNodes(ctx, rt); err != nil {
		logger.Error("plugin source hook failed, partial state retained",
			zap.Error(udlerrors.PluginSource(plugin.Name, err)))
	}

	if plugin.Strategy == StrategyRefetch {
		p.reconcileRefetch(plugin, beforeIDs, logger)
	}

	p.persist(ctx, plugin, logger)
}

// hydrate reads the plugin's cache envelope, Puts every contained node
// directly (bypassing digest stamping — the cache already carries it),
// registers the plugin's declared indexes, and replays the deletion log
// (spec.md §4.5 step 1). It returns the set of node ids owned by the
// plugin before sourcing begins, for refetch-strategy diffing.
func (p *Pipeline) hydrate(ctx context.Context, plugin Plugin, logger *zap.Logger) map[string]bool {
	for _, idx := range plugin.Indexes {
		p.store.RegisterIndex(idx.Type, idx.Field)
	}

	env, ok, err := p.caches.Load(ctx, plugin.Name)
	if err != nil {
		logger.Warn("cache load failed, starting empty", zap.Error(err))
	}
	if ok {
		for _, n := range env.Nodes {
			if putErr := p.store.Put(n); putErr != nil {
				logger.Warn("skipping malformed cached node", zap.String("id", n.Internal.ID), zap.Error(putErr))
			}
		}
		if env.DeletionLog != nil {
			for _, e := range env.DeletionLog.Entries {
				p.store.DeletionLog().RecordEntry(e)
			}
		}
	}

	before := make(map[string]bool)
	for _, n := range p.store.Owned(plugin.Name) {
		before[n.Internal.ID] = true
	}
	return before
}

// reconcileRefetch computes deletions for a refetch plugin by diffing the
// ids owned before this run against the ids owned after (spec.md §4.5 step
// 3): anything present before and absent after was dropped upstream.
func (p *Pipeline) reconcileRefetch(plugin Plugin, before map[string]bool, logger *zap.Logger) {
	after := make(map[string]bool)
	for _, n := range p.store.Owned(plugin.Name) {
		after[n.Internal.ID] = true
	}
	for id := range before {
		if !after[id] {
			p.store.Delete(id, store.DeleteOptions{Cascade: false})
			logger.Info("refetch diff deleted stale node", zap.String("id", id))
		}
	}
}

// persist calls Cache Store Save with the current state of the plugin's
// nodes, its registered indexes, and (for refetch plugins) a compacted
// deletion log (spec.md §4.5 step 4).
func (p *Pipeline) persist(ctx context.Context, plugin Plugin, logger *zap.Logger) {
	if plugin.Strategy == StrategyRefetch {
		p.store.DeletionLog().Compact(plugin.Name)
	}

	nodes := p.store.Owned(plugin.Name)
	indexesByType := make(map[string][]string)
	for _, idx := range plugin.Indexes {
		indexesByType[idx.Type] = append(indexesByType[idx.Type], idx.Field)
	}

	env := cache.Envelope{
		Nodes:   nodes,
		Indexes: indexesByType,
		Meta:    cache.Meta{Version: cache.CurrentVersion, UpdatedAt: graph.Now()},
	}
	if plugin.Strategy == StrategyRefetch {
		entries := p.store.DeletionLog().Snapshot()
		env.DeletionLog = &cache.DeletionLogEnvelope{Entries: entries, LastCleanup: graph.Now()}
	}

	if err := p.caches.Save(ctx, plugin.Name, env); err != nil {
		logger.Warn("cache save failed", zap.Error(udlerrors.TransientIO("cache save", err)))
	}
}

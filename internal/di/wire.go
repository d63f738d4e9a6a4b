//go:build wireinject

// Package di assembles the core's dependency graph: store, cache backend,
// pipeline, webhook registry/queue, remote sync client, and the HTTP
// router. Grounded on internal/di/wire*.go compile-time
// provider sets; wire codegen itself is out of scope (spec.md's Non-goals
// exclude CLI/codegen tooling), so this file documents the provider graph
// in wire's own syntax but is never built — container.go hand-implements
// the same graph and is what cmd/udld actually calls.
package di

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"udl-core/actions"
	"udl-core/config"
	"udl-core/domain/events"
	"udl-core/httpapi"
	"udl-core/pipeline"
	"udl-core/remotesync"
	"udl-core/store"
	"udl-core/store/cache"
	"udl-core/webhooks"
)

// ProviderSet enumerates every constructor wire would chain together to
// produce a Container. Kept in dependency order for readability; wire
// itself does not care about ordering.
var ProviderSet = wire.NewSet(
	zap.NewProduction,
	events.New,
	store.New,
	provideCacheStorage,
	provideWebhookRegistry,
	provideDispatcher,
	provideQueue,
	providePipeline,
	provideRemoteSyncClient,
	httpapi.NewRouter,
	wire.Struct(new(Container), "*"),
)

func provideCacheStorage(cfg *config.Config, logger *zap.Logger) cache.Storage {
	wire.Build(wire.NewSet())
	return nil
}

func provideWebhookRegistry() *webhooks.Registry {
	wire.Build(wire.NewSet())
	return nil
}

func provideDispatcher(reg *webhooks.Registry, s *store.Store, cfg *config.Config) *webhooks.Dispatcher {
	wire.Build(wire.NewSet())
	return nil
}

func provideQueue(cfg *config.Config, d *webhooks.Dispatcher, bus *events.Bus, logger *zap.Logger) *webhooks.Queue {
	wire.Build(wire.NewSet())
	return nil
}

func providePipeline(s *store.Store, caches cache.Storage, logger *zap.Logger) *pipeline.Pipeline {
	wire.Build(wire.NewSet())
	return nil
}

func provideRemoteSyncClient(cfg *config.Config, s *store.Store, logger *zap.Logger) *remotesync.Client {
	wire.Build(wire.NewSet())
	return nil
}

// BuildContainer is the injector wire would generate an implementation for.
func BuildContainer(cfg *config.Config) (*Container, error) {
	wire.Build(ProviderSet)
	return nil, nil
}

// Actions factories are per-plugin (they bind an owner name), so they are
// not part of the container graph; callers build one via actions.New per
// plugin registration, the same way pipeline.Pipeline.runOne does.
var _ = actions.New

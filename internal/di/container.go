//go:build !wireinject

// Package di assembles the core's dependency graph by hand. See wire.go
// (build-tagged out of the normal build) for the equivalent provider-set
// documentation; this file is what cmd/udld and cmd/udl-lambda actually
// call.
package di

import (
	"context"
	"os"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"udl-core/config"
	"udl-core/domain/events"
	"udl-core/httpapi"
	"udl-core/pipeline"
	"udl-core/remotesync"
	"udl-core/store"
	"udl-core/store/cache"
	"udl-core/webhooks"
)

// Container holds every long-lived component cmd/udld and cmd/udl-lambda
// need a handle to, wired once at process start.
type Container struct {
	Config     *config.Config
	Logger     *zap.Logger
	Bus        *events.Bus
	Store      *store.Store
	Cache      cache.Storage
	Registry   *webhooks.Registry
	Dispatcher *webhooks.Dispatcher
	Queue      *webhooks.Queue
	Pipeline   *pipeline.Pipeline
	Remote     *remotesync.Client
	Router     *httpapi.Router
}

// Build constructs the full Container from a resolved Config. Registry
// registration (which webhook plugins exist) and pipeline plugin
// registration happen after Build returns, since they are deployment-
// specific, not part of the core graph.
func Build(cfg *config.Config) (*Container, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	bus := events.New(logger)
	s := store.New(bus, logger)

	caches, err := buildCacheStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := webhooks.NewRegistry()
	dispatcher := webhooks.NewDispatcher(registry, s, 1<<20)
	queue := webhooks.NewQueue(webhooks.QueueConfig{
		Debounce: cfg.DebounceDuration(),
		MaxSize:  cfg.Webhooks.MaxQueueSize,
	}, dispatcher.Process, bus, logger)
	dispatcher.SetQueue(queue)

	plumbing := pipeline.New(s, caches, logger)

	var remote *remotesync.Client
	if cfg.Remote != nil {
		remote = remotesync.New(remotesync.Config{
			BaseURL:              cfg.Remote.URL,
			ReconnectDelay:        cfg.Remote.WebSocket.ReconnectDelay,
			MaxReconnectAttempts: cfg.Remote.WebSocket.MaxReconnectAttempts,
			OnWebhookReceived: func(pluginName string, parsed map[string]interface{}) {
				_ = dispatcher.Receive(pluginName, nil, parsed, nil)
			},
		}, s, logger)
	}

	router := httpapi.NewRouter(s, dispatcher, bus, logger)

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Bus:        bus,
		Store:      s,
		Cache:      caches,
		Registry:   registry,
		Dispatcher: dispatcher,
		Queue:      queue,
		Pipeline:   plumbing,
		Remote:     remote,
		Router:     router,
	}, nil
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "production" {
		return zap.NewProduction()
	}
	devCfg := zap.NewDevelopmentConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err == nil {
		devCfg.Level = level
	}
	return devCfg.Build()
}

// buildCacheStorage picks the file-backed CacheStorage by default, or a
// DynamoDB-backed one when CACHE_TABLE_NAME is set (spec.md §4.3 "plugins
// may substitute an alternative backend").
func buildCacheStorage(cfg *config.Config, logger *zap.Logger) (cache.Storage, error) {
	if table := os.Getenv("CACHE_TABLE_NAME"); table != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, err
		}
		client := dynamodb.NewFromConfig(awsCfg)
		return cache.NewDynamoStorage(client, table, logger), nil
	}
	return cache.NewFileStorage(cfg.CacheDir, logger), nil
}

// Close stops the components that own background goroutines or timers.
func (c *Container) Close() {
	c.Queue.Close()
}

// ShutdownGracePeriod bounds how long cmd/udld waits for in-flight
// requests to drain before closing the listener.
const ShutdownGracePeriod = 10 * time.Second

// Command udld is the core's long-running server: it resolves
// configuration, wires the dependency graph, registers plugins, runs the
// Source Pipeline once at boot, starts the remote sync client (if
// configured), and serves the HTTP surface (spec.md §6) until signalled to
// stop. Grounded on cmd/api/main.go bootstrap sequence.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"udl-core/config"
	"udl-core/internal/di"
	"udl-core/internal/observability"
	"udl-core/plugins/supabase"
	"udl-core/webhooks"
)

func main() {
	configPath := flag.String("config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.Build(cfg)
	if err != nil {
		zap.NewExample().Fatal("failed to build container", zap.Error(err))
	}
	logger := container.Logger
	defer logger.Sync()

	_, shutdownTracing, err := observability.Setup(context.Background(), observability.TracingConfig{
		ServiceName: "udld",
		Endpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	})
	if err != nil {
		logger.Warn("tracing disabled: exporter setup failed", zap.Error(err))
	} else {
		defer shutdownTracing(context.Background())
	}

	registerPlugins(container)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container.Pipeline.Run(ctx)

	if container.Remote != nil {
		go func() {
			if err := container.Remote.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("remote sync client stopped", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:    cfg.ServerAddress,
		Handler: container.Router.Setup(cfg.EnableCORS, cfg.EnableMetrics),
	}

	go func() {
		logger.Info("listening", zap.String("address", cfg.ServerAddress))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), di.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	container.Close()
}

// registerPlugins wires every configured plugin entry into the pipeline.
// Entries naming a recognized kind (here, "supabase") get a concrete
// implementation; unrecognized kinds are skipped with a warning, left for
// a deployment-specific build to register before calling di.Build's
// caller.
func registerPlugins(c *di.Container) {
	for _, pc := range c.Config.Plugins {
		kind, _ := pc.Options["kind"].(string)
		if kind != "supabase" {
			c.Logger.Warn("skipping plugin of unrecognized kind", zap.String("plugin", pc.Name), zap.String("kind", kind))
			continue
		}
		table, _ := pc.Options["table"].(string)
		nodeType, _ := pc.Options["nodeType"].(string)
		idColumn, _ := pc.Options["idColumn"].(string)
		if idColumn == "" {
			idColumn = "id"
		}

		p, err := supabase.NewPlugin(supabase.Config{
			PluginName:     pc.Name,
			URL:            os.Getenv("SUPABASE_URL"),
			ServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
			Table:          table,
			NodeType:       nodeType,
			IDColumn:       idColumn,
		})
		if err != nil {
			c.Logger.Warn("skipping misconfigured plugin", zap.String("plugin", pc.Name), zap.Error(err))
			continue
		}
		c.Pipeline.Register(p)

		if p.IDField != "" {
			c.Registry.RegisterDefault(pc.Name, webhooks.DefaultRegistration(p.IDField))
		}
	}
}

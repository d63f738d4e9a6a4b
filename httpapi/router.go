package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"udl-core/domain/events"
	"udl-core/store"
	"udl-core/webhooks"
)

// Router wires the core's HTTP surface (spec.md §6) onto chi, generalizing
// Router (interfaces/http/rest/router.go) from an
// authenticated CRUD API to the core's intake/health/sync/ws endpoints.
type Router struct {
	store      *store.Store
	dispatcher *webhooks.Dispatcher
	hub        *Hub
	logger     *zap.Logger
	startedAt  int64
}

// NewRouter builds a Router. bus must be the same event bus the store and
// webhook queue publish on, so NewHub's subscriptions see every mutation.
func NewRouter(s *store.Store, dispatcher *webhooks.Dispatcher, bus *events.Bus, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		store:      s,
		dispatcher: dispatcher,
		hub:        NewHub(bus, logger),
		logger:     logger,
		startedAt:  time.Now().UnixMilli(),
	}
}

// Setup configures routes and middleware and returns the root handler.
func (rt *Router) Setup(enableCORS, enableMetrics bool) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(loggingMiddleware(rt.logger))

	if enableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID", "X-Hub-Signature-256"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", rt.handleHealth)
	r.Get("/_sync", rt.handleSync)
	r.Get("/ws", rt.handleWebSocket)
	r.Post("/_webhooks/{plugin}/sync", rt.handleWebhookIntake)

	if enableMetrics {
		r.Get("/metrics", promhttp.Handler().ServeHTTP)
	}

	return r
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, req.ProtoMajor)
			next.ServeHTTP(ww, req)
			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

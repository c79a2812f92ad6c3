package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/amerfu/llmgate/internal/config"
	"github.com/amerfu/llmgate/internal/handlers"
	"github.com/amerfu/llmgate/internal/middleware"
	"github.com/amerfu/llmgate/internal/services/account"
	"github.com/amerfu/llmgate/internal/services/billing"
	"github.com/amerfu/llmgate/internal/services/cache"
	"github.com/amerfu/llmgate/internal/services/key"
	"github.com/amerfu/llmgate/internal/services/pricing"
	"github.com/amerfu/llmgate/internal/services/providers"
	"github.com/amerfu/llmgate/internal/services/usage"
)

// Deps carries everything the router wires together. The caller owns the
// lifecycle of each dependency; the router only composes handlers.
type Deps struct {
	Config   *config.Config
	Logger   *zap.Logger
	DB       *gorm.DB
	Cache    *cache.Cache
	Bus      *cache.Bus
	Registry *providers.Registry

	Accounts *account.Service
	Keys     *key.Service
	Prices   *pricing.Service
	Usage    *usage.Service
	Ledger   *billing.Ledger
}

// New assembles the complete HTTP surface: the three completion endpoints,
// the informational client endpoints, the admin CRUD, and the probes.
func New(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Logger(d.Logger))
	r.Use(middleware.MetricsMiddleware(d.Logger))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.Config.CORS.AllowedOrigins,
		AllowedMethods:   d.Config.CORS.AllowedMethods,
		AllowedHeaders:   d.Config.CORS.AllowedHeaders,
		ExposedHeaders:   d.Config.CORS.ExposedHeaders,
		AllowCredentials: d.Config.CORS.AllowCredentials,
		MaxAge:           d.Config.CORS.MaxAge,
	}))

	healthHandler := handlers.NewHealthHandler(d.Bus)
	rootHandler := handlers.NewRootHandler(d.Registry)

	// Public routes
	r.Get("/", rootHandler.Describe)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	proxyHandler := handlers.NewProxyHandler(d.Registry, d.Ledger, d.Config.Server.StreamIdleTimeout, d.Logger)
	accountHandler := handlers.NewAccountHandler(d.Accounts, d.Logger)
	modelsHandler := handlers.NewModelsHandler(d.Prices, d.Logger)

	clientGate := middleware.NewClientGate(d.Cache, d.Keys, d.Accounts, d.Logger)

	// Client-facing routes behind the bearer-key gate. No server-side write
	// timeout here: streams legitimately stay open for minutes and are
	// bounded by the stream idle timeout instead.
	r.Group(func(r chi.Router) {
		r.Use(clientGate.Authenticate)

		r.Route("/v1", func(r chi.Router) {
			r.Post("/chat/completions", proxyHandler.ChatCompletions)
			r.Post("/responses", proxyHandler.Responses)
			r.Post("/messages", proxyHandler.Messages)

			r.Get("/models", modelsHandler.List)
			r.Get("/account", accountHandler.Get)
		})
	})

	r.Mount("/admin", newAdminRouter(d))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		if _, err := w.Write([]byte(`{"error": {"message": "Not found", "type": "not_found_error"}}`)); err != nil {
			d.Logger.Error("Failed to write 404 response", zap.Error(err))
		}
	})

	return r
}

package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/amerfu/llmgate/internal/handlers/admin"
	"github.com/amerfu/llmgate/internal/middleware"
)

// newAdminRouter builds the management surface mounted at /admin. Every route
// sits behind the static admin secret and a short timeout; admin traffic is
// CRUD, nothing here streams.
func newAdminRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	adminGate := middleware.NewAdminGate(d.Config.Admin.Key, d.Logger)
	r.Use(adminGate.Authenticate)
	r.Use(chiMiddleware.Timeout(d.Config.Server.AdminTimeout))

	accountHandler := admin.NewAccountHandler(d.Accounts, d.Bus, d.Logger)
	keyHandler := admin.NewKeyHandler(d.Keys, d.Accounts, d.Bus, d.Logger)
	costHandler := admin.NewCostHandler(d.Prices, d.Bus, d.Logger)
	usageHandler := admin.NewUsageHandler(d.Usage, d.Accounts, d.Logger)
	healthHandler := admin.NewHealthHandler(d.Cache, d.Bus, d.Logger)

	r.Route("/accounts", func(r chi.Router) {
		r.Post("/", accountHandler.Create)
		r.Get("/", accountHandler.List)
		r.Get("/{user_id}", accountHandler.Get)
		r.Patch("/{user_id}", accountHandler.Update)
	})

	r.Route("/keys", func(r chi.Router) {
		r.Post("/", keyHandler.Create)
		r.Post("/bulk", keyHandler.CreateBulk)
		r.Get("/{user_id}", keyHandler.ListByUser)
		r.Patch("/{key}", keyHandler.Update)
	})

	r.Route("/costs", func(r chi.Router) {
		r.Post("/", costHandler.Upsert)
		r.Get("/", costHandler.List)
		r.Get("/{model_name}", costHandler.Get)
		r.Delete("/{model_name}", costHandler.Delete)
	})

	r.Get("/usage/{user_id}", usageHandler.Summary)
	r.Get("/health", healthHandler.Health)

	return r
}

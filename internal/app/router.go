package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/confidant-vault/confidant/internal/access"
	"github.com/confidant-vault/confidant/internal/auth"
	"github.com/confidant-vault/confidant/internal/identity"
	"github.com/confidant-vault/confidant/internal/observability"
	"github.com/confidant-vault/confidant/internal/secrets"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	AuthHandler     *auth.Handler
	AuthMiddleware  *auth.Middleware
	IdentityHandler *identity.Handler
	AccessHandler   *access.Handler
	SecretsHandler  *secrets.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi.Router with Confidant defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", func(r chi.Router) {
		loginLimit := 10
		if params.Config != nil {
			loginLimit = params.Config.LoginRateLimit
		}
		r.Use(LoginRateLimiter(loginLimit))
		params.AuthHandler.MountRoutes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(params.AuthMiddleware.RequireAuth)
		r.Route("/identities", params.IdentityHandler.MountRoutes)
		r.Route("/access", params.AccessHandler.MountRoutes)
		r.Route("/secrets", params.SecretsHandler.MountRoutes)
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

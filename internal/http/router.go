package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hermod-im/server/internal/auth"
	"github.com/hermod-im/server/internal/http/handlers"
	"github.com/hermod-im/server/internal/middleware"
)

// NewRouter creates a new HTTP router with all routes configured. metrics may
// be nil when the exposition endpoint is disabled.
func NewRouter(registerHandler *handlers.RegisterHandler, jwtService *auth.JWTService, metrics http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Get("/health", healthHandler.ServeHTTP)

	if metrics != nil {
		r.Get("/metrics", metrics.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.PrincipalMiddleware(jwtService))
		r.Get("/register", registerHandler.HandleInstructions)
		r.Post("/register", registerHandler.HandleRegister)
	})

	return r
}

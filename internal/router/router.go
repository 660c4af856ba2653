// Package router sets up all HTTP routes and middleware chains for the
// Pathways account service. Catalog routes are public; account, onboarding
// and progress routes require a bearer token.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pathways/internal/handlers"
	"pathways/internal/middleware"
)

// APIPrefix is where the versioned API is mounted.
const APIPrefix = "/api/v1"

// Handlers bundles the handler groups the router mounts.
type Handlers struct {
	Auth    *handlers.Auth
	Account *handlers.Account
	Journey *handlers.Journey
	Catalog *handlers.Catalog
	Health  *handlers.Health
}

// Options carries the middleware dependencies.
type Options struct {
	Tokens      middleware.TokenParser
	Sessions    middleware.SessionGetter
	CORSOrigins []string
	// AuthLimiter throttles signup and login. Nil disables throttling.
	AuthLimiter *middleware.RateLimiter
	Log         *zap.Logger
}

// New creates and returns the configured Chi router with all middleware
// and route groups wired up.
func New(opts Options, h Handlers) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recoverer(opts.Log))
	r.Use(middleware.Logger(opts.Log))
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.CORS(opts.CORSOrigins))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		jsonError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/healthz", h.Health.Check)

	requireAuth := middleware.RequireAuth(opts.Tokens, opts.Sessions, opts.Log)

	r.Route(APIPrefix, func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				if opts.AuthLimiter != nil {
					r.Use(opts.AuthLimiter.Middleware)
				}
				r.Post("/signup", h.Auth.Signup)
				r.Post("/login", h.Auth.Login)
			})
			r.With(requireAuth).Get("/me", h.Auth.Me)
			r.With(requireAuth).Post("/logout", h.Auth.Logout)
		})

		// Catalog: read-only reference data.
		r.Get("/stages", h.Catalog.Stages)
		r.Get("/stages/{id}", h.Catalog.Stage)
		r.Get("/milestones", h.Catalog.Milestones)
		r.Get("/milestones/{id}", h.Catalog.Milestone)
		r.Get("/resources", h.Catalog.Resources)
		r.Get("/resources/{id}", h.Catalog.Resource)

		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Route("/users/me", func(r chi.Router) {
				r.Get("/", h.Account.Profile)
				r.Patch("/", h.Account.UpdateProfile)
				r.Patch("/password", h.Account.ChangePassword)
			})

			r.Post("/onboarding", h.Journey.SubmitOnboarding)
			r.Get("/onboarding", h.Journey.LatestOnboarding)

			r.Route("/progress", func(r chi.Router) {
				r.Get("/", h.Journey.Progress)
				r.Delete("/", h.Journey.ResetProgress)
				r.Post("/milestones/{id}/toggle", h.Journey.ToggleMilestone)
				r.Get("/history", h.Journey.History)
				r.Get("/history/milestone/{id}", h.Journey.MilestoneHistory)
			})
		})
	})

	return r
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

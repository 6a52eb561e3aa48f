package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cipherdial/cipherdial/internal/api/middleware"
	"github.com/cipherdial/cipherdial/internal/handlers"
	"github.com/cipherdial/cipherdial/internal/store"
	"github.com/cipherdial/cipherdial/internal/token"
)

// RouterConfig carries the rate limiter settings through to the router.
type RouterConfig struct {
	RateLimitWhitelist []string
	AutoBlockEnabled   bool
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, db store.DataStore, redisStore *store.RedisStore, tokens *token.Service, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(64 * 1024)) // ciphertext payloads are the largest bodies
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting (requires Redis; skipped in bare development setups)
	if redisStore != nil {
		limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		})
		r.Use(limiter.Middleware)
	}

	// CORS - browser clients call from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Create handler and auth middleware
	h := handlers.NewHandler(db, redisStore, tokens)
	auth := middleware.NewAuthMiddleware(tokens, db)
	r.Use(auth.Resolve)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	// Authenticated routes (require a resolved identity)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Get("/users/me", h.Me)
		r.Patch("/users/me", h.UpdateMe)
		r.Get("/users/search", h.Search)

		r.Get("/dialogs/", h.ListDialogs)
		r.Post("/dialogs/", h.CreateDialog)
		r.Get("/dialogs/{id}/", h.RetrieveDialog)
		r.Get("/dialogs/{id}/messages", h.ListMessages)
		r.Post("/dialogs/{id}/messages", h.SendMessage)
	})

	return r
}

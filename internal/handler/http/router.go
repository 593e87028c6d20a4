package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BVSokolov/udemy-prostore/pkg/health"
	"github.com/BVSokolov/udemy-prostore/pkg/middleware"
)

// RouterConfig carries the transport settings and collaborators.
type RouterConfig struct {
	ServiceName string
	Reviews     ReviewAPI
	Catalog     CatalogAPI
	Health      *health.Handler
	Identity    middleware.IdentityResolver
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	// SubmitLimiter throttles review submissions per user. Nil disables it.
	SubmitLimiter *middleware.Limiter
	CORS          middleware.CORSConfig
	CacheMaxAge   int
	PprofCIDRs    []string
	Logger        *slog.Logger
}

// NewRouter creates a chi router with all review service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	resolve := cfg.Identity
	if resolve == nil {
		resolve = func(*http.Request) (string, bool) { return "", false }
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.Identify(resolve))
		r.Use(middleware.CacheControl(cfg.CacheMaxAge))

		// Product API endpoints
		productHandler := NewProductHandler(cfg.Catalog, logger)

		r.Route("/api/v1/products", func(r chi.Router) {
			r.Get("/", productHandler.ListProducts)
			r.Get("/{slug}", productHandler.GetProduct)
		})

		// Review API endpoints (nested under products)
		reviewHandler := NewReviewHandler(cfg.Reviews, logger)

		r.Route("/api/v1/products/{productId}/reviews", func(r chi.Router) {
			r.Get("/", reviewHandler.ListReviews)
			r.Get("/mine", reviewHandler.GetOwnReview)

			r.Group(func(r chi.Router) {
				if cfg.SubmitLimiter != nil {
					r.Use(middleware.RateLimit(cfg.SubmitLimiter, middleware.ByUserOrIP, logger))
				}
				r.Post("/", reviewHandler.SubmitReview)
			})
		})
	})

	return r
}

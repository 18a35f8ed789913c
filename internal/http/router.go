package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robertarktes/class-bookings/internal/auth"
	"github.com/robertarktes/class-bookings/internal/idempotency"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/rateLimit"
)

// RouterDeps are the optional collaborators of the router. A nil field
// disables the matching middleware.
type RouterDeps struct {
	Verifier    *auth.Verifier
	RateLimiter *rateLimit.RateLimiter
	Idempotency *idempotency.Idempotency
	LoginURL    string
}

func SetupRouter(h *Handlers, logger observability.Logger, deps RouterDeps) *chi.Mux {
	loginURL := deps.LoginURL
	if loginURL == "" {
		loginURL = "/accounts/login/"
	}

	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)
	r.Use(TracingMiddleware)
	r.Use(JWTMiddleware(deps.Verifier, logger))

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(deps.RateLimiter, logger))
		r.Use(IdempotencyMiddleware(deps.Idempotency, logger))

		r.Get("/", h.Home)
		r.Get("/products/", h.Products)
		r.Get("/product/{slug}/", h.Product)
		r.Get("/feedback/", h.FeedbackForm)
		r.Post("/feedback/", h.SubmitFeedback)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser(loginURL))

			r.Post("/add-to-cart/{slug}/", h.AddToCart)
			r.Post("/remove-from-cart/{slug}/", h.RemoveFromCart)
			r.Get("/order-summary/", h.OrderSummary)
		})
	})

	return r
}

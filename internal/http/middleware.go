package http

import (
	"bytes"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/robertarktes/class-bookings/internal/auth"
	"github.com/robertarktes/class-bookings/internal/idempotency"
	"github.com/robertarktes/class-bookings/internal/observability"
	"github.com/robertarktes/class-bookings/internal/rateLimit"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelhttp "go.opentelemetry.io/otel/propagation"
)

func RequestIDMiddleware(next http.Handler) http.Handler {
	return middleware.RequestID(next)
}

// LoggerMiddleware stores a logger tagged with the request ID in the context.
func LoggerMiddleware(logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := middleware.GetReqID(r.Context())
			entry := logger.WithField("request_id", reqID)
			ctx := observability.WithLogger(r.Context(), entry)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), otelhttp.HeaderCarrier(r.Header))
		tracer := otel.Tracer("http")
		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
		defer span.End()

		span.SetAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.url", r.URL.String()),
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", ww.Status()))
		if ww.Status() >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(ww.Status()))
		}
	})
}

// MetricsMiddleware counts requests by route pattern, so slugs do not
// become label values.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		observability.RequestsTotal.WithLabelValues(route, strconv.Itoa(status), r.Method).Inc()
	})
}

// JWTMiddleware attaches the bearer token's user to the context. Requests
// without a valid token continue anonymously.
func JWTMiddleware(verifier *auth.Verifier, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if verifier == nil || token == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, err := verifier.Verify(token)
			if err != nil {
				observability.FromContext(r.Context(), logger).
					WithError(err).Debug("rejected bearer token")
				next.ServeHTTP(w, r)
				return
			}
			ctx := auth.WithUser(r.Context(), userID)
			ctx = observability.WithLogger(ctx, observability.FromContext(ctx, logger).WithField("user_id", userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser redirects anonymous callers to the login page.
func RequireUser(loginURL string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := auth.UserFrom(r.Context()); !ok {
				redirect(w, loginURL+"?next="+url.QueryEscape(r.URL.RequestURI()), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware applies the per IP limit and, for signed in callers,
// the per user limit. Counter failures let the request through.
func RateLimitMiddleware(rl *rateLimit.RateLimiter, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl == nil {
				next.ServeHTTP(w, r)
				return
			}
			log := observability.FromContext(r.Context(), logger)

			allowed, err := rl.AllowIP(r.Context(), clientIP(r))
			if err == nil && allowed {
				if userID, ok := auth.UserFrom(r.Context()); ok {
					allowed, err = rl.AllowUser(r.Context(), userID.String())
				}
			}
			if err != nil {
				log.WithError(err).Warn("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				observability.RateLimitExceeded.Inc()
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdempotencyMiddleware replays the stored response when a POST repeats its
// Idempotency-Key. Requests without the header are not deduplicated.
func IdempotencyMiddleware(idemp *idempotency.Idempotency, logger observability.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get("Idempotency-Key")
			if idemp == nil || r.Method != http.MethodPost || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			log := observability.FromContext(r.Context(), logger)

			scope := "ip:" + clientIP(r)
			if userID, ok := auth.UserFrom(r.Context()); ok {
				scope = "user:" + userID.String()
			}
			key, err := idempotency.Key(scope, r.Method, r.URL.Path, clientKey)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid Idempotency-Key"})
				return
			}

			existing, err := idemp.Get(r.Context(), key)
			if err != nil {
				log.WithError(err).Warn("idempotency lookup failed")
			}
			if existing != nil {
				if existing.Location != "" {
					w.Header().Set("Location", existing.Location)
				}
				if existing.ContentType != "" {
					w.Header().Set("Content-Type", existing.ContentType)
				}
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.Status)
				w.Write(existing.Body)
				return
			}

			var body bytes.Buffer
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
				return
			}
			err = idemp.Set(r.Context(), key, idempotency.Response{
				Status:      status,
				Location:    w.Header().Get("Location"),
				ContentType: w.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			})
			if err != nil {
				log.WithError(err).Warn("idempotency store failed")
			}
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

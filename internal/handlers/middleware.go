package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/storefront/apiserver/internal/apperr"
	"github.com/storefront/apiserver/internal/auth"
	"github.com/storefront/apiserver/internal/metrics"
	"github.com/storefront/apiserver/types"
)

// TokenVerifier resolves a bearer token to the active user holding it.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (types.User, error)
}

// Authenticate resolves the bearer token and stores the user in the request context.
func Authenticate(verifier TokenVerifier, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := bearerToken(r)
			if err != nil {
				metrics.AuthFailures.WithLabelValues("verify").Inc()
				writeError(w, http.StatusUnauthorized, msgInvalidToken)
				return
			}

			user, err := verifier.Verify(r.Context(), token)
			if err != nil {
				writeAppError(w, log, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// Authorize rejects requests whose user holds none of the required roles.
// An empty role list lets any authenticated user through.
func Authorize(roles []string, log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := userFromContext(r.Context())
			if !ok {
				writeAppError(w, log, apperr.Authentication("user not found in request"))
				return
			}
			if err := auth.Authorize(user.ID, roles, user.Roles); err != nil {
				metrics.AuthFailures.WithLabelValues("authorize").Inc()
				writeAppError(w, log, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogger logs each request and records its status and latency.
func RequestLogger(log *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)

			route := routePattern(r)
			status := strconv.Itoa(rec.status)
			elapsed := time.Since(start)
			metrics.RequestsTotal.WithLabelValues(route, r.Method, status).Inc()
			metrics.RequestLatency.WithLabelValues(route, r.Method, status).Observe(elapsed.Seconds())

			entry := log.WithFields(logrus.Fields{
				"method":      r.Method,
				"route":       route,
				"status":      rec.status,
				"duration_ms": elapsed.Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
			if rec.status >= http.StatusInternalServerError {
				entry.Warn("request completed")
				return
			}
			entry.Info("request completed")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if pattern := rc.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", errors.New("missing authorization")
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}

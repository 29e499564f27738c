package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/originsignal/ingestion/internal/ingestion/domain"
	apperrors "github.com/originsignal/ingestion/pkg/errors"
)

type contextKey string

const (
	tokenContextKey contextKey = "ingestion_token"
)

// tokenFromContext returns the authenticated token stored by AuthMiddleware.
func tokenFromContext(ctx context.Context) *domain.IngestionToken {
	token, _ := ctx.Value(tokenContextKey).(*domain.IngestionToken)
	return token
}

// AuthMiddleware runs C1 for every request under /api/tracking/events:
// parse the bearer token, resolve it, enforce revocation/expiry/IP
// allowlist, and stash the resolved token on the request context for the
// handler and the rate limiter downstream.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := clientIPFromRequest(r)

		token, err := h.authUseCase.Execute(r.Context(), r.Header.Get("Authorization"), clientIP)
		if err != nil {
			h.respondError(w, err)
			return
		}

		go h.authUseCase.TouchLastUsed(detachedContext(r.Context()), token)

		ctx := context.WithValue(r.Context(), tokenContextKey, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RateLimitMiddleware enforces §5's per-token request budget. It must run
// after AuthMiddleware so the limit is keyed on the resolved token; without
// one it falls back to keying on the client IP.
func (h *Handler) RateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.rateLimiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		token := tokenFromContext(r.Context())
		key := rateLimitKey(token, r)

		allowed, err := h.rateLimiter.Allow(r.Context(), key)
		if err != nil {
			h.respondError(w, apperrors.Wrap(err, apperrors.ErrCodeInternal, "rate limit check failed"))
			return
		}
		if !allowed {
			h.respondError(w, apperrors.ErrTooManyRequests("rate limit exceeded"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(token *domain.IngestionToken, r *http.Request) string {
	if token != nil {
		return "token:" + tokenKeyPart(token)
	}
	return "ip:" + clientIPFromRequest(r)
}

func tokenKeyPart(token *domain.IngestionToken) string {
	return token.Prefix
}

// clientIPFromRequest prefers X-Forwarded-For (as set by an upstream load
// balancer) over RemoteAddr, mirroring how chi's RealIP middleware behaves,
// but is applied explicitly here since C1's IP allowlist check needs the
// same value the rate limiter keys on.
func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	if rip := r.Header.Get("X-Real-IP"); rip != "" {
		return rip
	}
	return r.RemoteAddr
}

// detachedContext strips a request-scoped context's cancellation so a
// best-effort background write (TouchLastUsed) isn't aborted the instant
// the HTTP handler returns.
func detachedContext(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

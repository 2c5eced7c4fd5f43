package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5/middleware"
)

type identityKey struct{}

// Identity headers set by the upstream auth gateway.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserPhone = "X-User-Phone"
	HeaderUserEmail = "X-User-Email"
	HeaderUserName  = "X-User-Name"
	HeaderUserRole  = "X-User-Role"
)

// IdentityMiddleware trusts the X-User-* headers from the auth gateway and
// rejects requests without a user id.
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who := domain.Identity{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Phone:  strings.TrimSpace(r.Header.Get(HeaderUserPhone)),
			Email:  strings.TrimSpace(r.Header.Get(HeaderUserEmail)),
			Name:   strings.TrimSpace(r.Header.Get(HeaderUserName)),
			Role:   strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole))),
		}
		if who.UserID == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}

		ctx := context.WithValue(r.Context(), identityKey{}, who)
		ctx = logger.WithContext(ctx, logger.FromContext(ctx).With("user_id", who.UserID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identityFrom(r.Context()).IsAdmin() {
			respondError(w, http.StatusForbidden, "permission_denied", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(ctx context.Context) domain.Identity {
	who, _ := ctx.Value(identityKey{}).(domain.Identity)
	return who
}

// RequestLogger puts a logger carrying the request id into the request
// context for logger.FromContext.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := base.With("request_id", middleware.GetReqID(r.Context()))
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
		})
	}
}

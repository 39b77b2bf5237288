package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/verisend/server/internal/api/problem"
	"github.com/verisend/server/internal/auth"
)

const AdminAuthCookieName = "verisend_admin_token"

type contextKeyAuth string

const adminClaimsKey contextKeyAuth = "adminClaims"

// AdminAuthCookie gates browser-facing admin pages behind the auth cookie.
// The cookie is checked on every request so a revoked or expired token loses
// access immediately.
func AdminAuthCookie(manager *auth.JWTManager, loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			cookie, err := r.Cookie(AdminAuthCookieName)
			if err != nil || strings.TrimSpace(cookie.Value) == "" {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			claims, err := manager.Validate(cookie.Value)
			if err != nil {
				http.Redirect(w, r, loginPath, http.StatusFound)
				return
			}

			ctx := contextWithAdminClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func contextWithAdminClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, adminClaimsKey, claims)
}

func AdminClaims(r *http.Request) *auth.Claims {
	if r == nil {
		return nil
	}
	if claims, ok := r.Context().Value(adminClaimsKey).(*auth.Claims); ok {
		return claims
	}
	return nil
}

// JWTAuth validates Bearer tokens from the Authorization header.
// Used for the JSON admin API under /api/v1/admin.
func JWTAuth(manager *auth.JWTManager, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if manager == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", problem.ErrUnauthorized, env)
				return
			}

			token, err := auth.TokenFromHeader(r.Header.Get("Authorization"))
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Missing or malformed authorization header", err, env)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Invalid token", err, env)
				return
			}

			if !claims.IsAdmin() {
				problem.Write(w, r, http.StatusForbidden, problem.TypeForbidden, "Insufficient permissions", problem.ErrForbidden, env)
				return
			}

			ctx := contextWithAdminClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

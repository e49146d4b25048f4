package auth

import (
	"net/http"
	"strings"
)

// MiddlewareConfig configures the auth middleware. With RequireAuth=false
// (used for public-form submission routes), a missing or invalid token is
// not an error: the handler runs with an anonymous context.
type MiddlewareConfig struct {
	Service     *Service
	RequireAuth bool
}

// Middleware resolves the bearer token on each request into a *Claims and
// *User on the context, rejecting revoked or invalid tokens when
// RequireAuth is set.
func Middleware(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)

			if token == "" {
				if cfg.RequireAuth {
					http.Error(w, `{"error":"authentication required"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := cfg.Service.ValidateToken(r.Context(), token)
			if err != nil {
				if cfg.RequireAuth {
					http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)

			user, err := cfg.Service.GetUserByID(r.Context(), claims.UserID)
			if err == nil {
				ctx = ContextWithUser(ctx, user)
			} else if cfg.RequireAuth {
				http.Error(w, `{"error":"invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests without a valid, unrevoked token.
func RequireAuth(service *Service) func(http.Handler) http.Handler {
	return Middleware(MiddlewareConfig{Service: service, RequireAuth: true})
}

// OptionalAuth resolves a token when present but never rejects the
// request, for routes that accept anonymous submission on public forms.
func OptionalAuth(service *Service) func(http.Handler) http.Handler {
	return Middleware(MiddlewareConfig{Service: service, RequireAuth: false})
}

func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

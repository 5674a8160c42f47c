package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/hermod-im/server/internal/auth"
	"github.com/hermod-im/server/internal/register"
)

type contextKey string

const principalKey contextKey = "principal"

// PrincipalMiddleware resolves an optional Bearer token into the session
// principal. Registration has to stay reachable for anonymous clients, so a
// missing header passes through as an unauthorized principal; a token that
// is present but does not verify is rejected.
func PrincipalMiddleware(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondWithError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			tokenString := strings.TrimSpace(parts[1])
			if tokenString == "" {
				respondWithError(w, http.StatusUnauthorized, "missing token")
				return
			}

			claims, err := jwtService.VerifyToken(tokenString)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			p := register.Principal{Identity: claims.Identity, Authorized: true}
			ctx := context.WithValue(r.Context(), principalKey, p)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetPrincipal returns the principal attached by PrincipalMiddleware, or the
// zero (anonymous) principal when none was presented.
func GetPrincipal(ctx context.Context) register.Principal {
	p, ok := ctx.Value(principalKey).(register.Principal)
	if !ok {
		return register.Principal{}
	}
	return p
}

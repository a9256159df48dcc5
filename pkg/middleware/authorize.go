package middleware

import (
	"crypto/subtle"
	"net/http"

	"civicfix/pkg/models"
	"civicfix/pkg/response"
)

// RequireRole ensures the authenticated user has one of the allowed roles.
func RequireRole(allowedRoles ...models.Role) Middleware {
	allowed := make(map[models.Role]bool, len(allowedRoles))
	for _, r := range allowedRoles {
		allowed[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			if !allowed[claims.Role] {
				response.Error(w, http.StatusForbidden, "Forbidden", "Insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const InternalTokenHeader = "X-Internal-Token"

// RequireInternalToken guards service-to-service endpoints. An empty token disables the
// check, which is only meant for local development.
func RequireInternalToken(token string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(InternalTokenHeader)), []byte(token)) != 1 {
				response.Error(w, http.StatusForbidden, "Forbidden", "Invalid internal token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

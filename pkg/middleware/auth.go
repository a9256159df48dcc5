package middleware

import (
	"context"
	"net/http"

	"civicfix/pkg/apperror"
	"civicfix/pkg/auth"
	"civicfix/pkg/response"
)

// Authenticator turns a bearer token into verified claims.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
}

type claimsKey struct{}
type tokenKey struct{}

// AuthMiddleware rejects requests without a valid bearer token.
func AuthMiddleware(authn Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				response.Error(w, http.StatusUnauthorized, "Missing Authorization header", "")
				return
			}
			token, ok := auth.BearerToken(header)
			if !ok {
				response.Error(w, http.StatusUnauthorized, "Invalid token format", "Format must be Bearer <token>")
				return
			}

			claims, err := authn.Authenticate(r.Context(), token)
			if err != nil {
				response.FromError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims, token)))
		})
	}
}

// OptionalAuth attaches the caller's claims when a valid token is present and lets
// anonymous visitors through otherwise.
func OptionalAuth(authn Authenticator) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
				if claims, err := authn.Authenticate(r.Context(), token); err == nil {
					r = r.WithContext(withClaims(r.Context(), claims, token))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func withClaims(ctx context.Context, claims *auth.Claims, token string) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, claims)
	return context.WithValue(ctx, tokenKey{}, token)
}

func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*auth.Claims)
	return claims, ok
}

// ActorFromContext returns the authenticated actor, or the zero Actor for visitors.
func ActorFromContext(ctx context.Context) auth.Actor {
	if claims, ok := ClaimsFromContext(ctx); ok {
		return claims.Actor()
	}
	return auth.Actor{}
}

func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

// RequireActor is a guard for handlers mounted behind OptionalAuth.
func RequireActor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor := ActorFromContext(r.Context())
	if !actor.Authenticated() {
		response.FromError(w, apperror.Unauthorized("Authentication required"))
		return auth.Actor{}, false
	}
	return actor, true
}

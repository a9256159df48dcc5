package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"civicfix/pkg/apperror"
	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/models"
	"civicfix/pkg/response"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth struct {
	tokens *auth.Tokens
}

func (a tokenAuth) Authenticate(_ context.Context, token string) (*auth.Claims, error) {
	return a.tokens.Parse(token)
}

func newAuth(t *testing.T) (tokenAuth, func(models.User) string) {
	t.Helper()
	tokens, err := auth.NewTokens("middleware-secret", time.Hour)
	require.NoError(t, err)
	issue := func(u models.User) string {
		raw, _, err := tokens.Issue(u)
		require.NoError(t, err)
		return raw
	}
	return tokenAuth{tokens: tokens}, issue
}

func TestTraceMiddleware(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetTraceID(r)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(TraceHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "given-id")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "given-id", seen)
}

func TestAuthMiddleware(t *testing.T) {
	authn, issue := newAuth(t)
	var actor auth.Actor
	h := AuthMiddleware(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorFromContext(r.Context())
		assert.NotEmpty(t, TokenFromContext(r.Context()))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Token abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(models.User{ID: 4, Name: "Kim", Role: models.RoleModerator}))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, auth.Actor{ID: 4, Name: "Kim", Role: models.RoleModerator}, actor)
}

func TestOptionalAuth(t *testing.T) {
	authn, issue := newAuth(t)
	var actor auth.Actor
	h := OptionalAuth(authn)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor = ActorFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, actor.Authenticated())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issue(models.User{ID: 1, Role: models.RoleUser}))
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, int64(1), actor.ID)
}

func TestRequireRole(t *testing.T) {
	authn, issue := newAuth(t)
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}),
		AuthMiddleware(authn),
		RequireRole(models.RoleAdmin, models.RoleModerator),
	)

	call := func(role models.Role) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issue(models.User{ID: 1, Role: role}))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, call(models.RoleUser))
	assert.Equal(t, http.StatusOK, call(models.RoleModerator))
	assert.Equal(t, http.StatusOK, call(models.RoleAdmin))
}

func TestRequireInternalToken(t *testing.T) {
	h := RequireInternalToken("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/internal/assign", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/internal/assign", nil)
	req.Header.Set(InternalTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireActor(t *testing.T) {
	rec := httptest.NewRecorder()
	_, ok := RequireActor(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggerAndMetricsRecordStatus(t *testing.T) {
	RegisterMetrics()
	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}), TraceMiddleware, LoggerMiddleware(logger.Nop()), MetricsMiddleware)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/complaints/12", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "short and stout", rec.Body.String())
}

func TestResponseWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := wrap(rec)
	rw.Flush()
	assert.True(t, rec.Flushed)
	assert.Same(t, rw, wrap(rw))
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/complaints/{id}", normalizePath("/api/complaints/12"))
	assert.Equal(t, "/api/complaints/{id}/comments", normalizePath("/api/complaints/3/comments"))
	assert.Equal(t, "/api/dashboard", normalizePath("/api/dashboard"))

	req := httptest.NewRequest(http.MethodGet, "/api/complaints/7", nil)
	assert.Equal(t, "/api/complaints/{id}", routeLabel(req))
	req.Pattern = "GET /api/users/{id}/complaints"
	assert.Equal(t, "/api/users/{id}/complaints", routeLabel(req))
}

func TestAuthMiddleware_PropagatesErrorKind(t *testing.T) {
	h := AuthMiddleware(failingAuth{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingAuth struct{}

func (failingAuth) Authenticate(context.Context, string) (*auth.Claims, error) {
	return nil, apperror.Internal("Failed to check session", nil)
}

func TestRouteErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.PathValue("id")))
	})
	mux.HandleFunc("DELETE /api/complaints/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	h := RouteErrors(mux)

	tests := []struct {
		name    string
		method  string
		path    string
		code    int
		message string
		allow   string
	}{
		{"matched", http.MethodGet, "/api/complaints/4", http.StatusOK, "", ""},
		{"wrong method", http.MethodPost, "/api/complaints/4", http.StatusMethodNotAllowed, "Method not allowed", "GET, DELETE"},
		{"unknown path", http.MethodGet, "/api/nowhere", http.StatusNotFound, "Route not found", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.allow, rec.Header().Get("Allow"))
			if tt.message == "" {
				assert.Equal(t, "4", rec.Body.String())
				return
			}
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			var env response.APIResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
			assert.Equal(t, "error", env.Status)
			assert.Equal(t, tt.message, env.Message)
		})
	}
}

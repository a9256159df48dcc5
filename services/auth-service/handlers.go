package main

import (
	"context"
	"net/http"

	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/response"
)

type server struct {
	auth *auth.Service
	log  *logger.Logger
	// ping reports the health of the backing store. Nil means in-memory.
	ping func(ctx context.Context) error
}

func (s *server) routes() http.Handler {
	authed := middleware.AuthMiddleware(s.auth)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/register", s.registerHandler)
	mux.HandleFunc("POST /api/auth/login", s.loginHandler)
	mux.Handle("GET /api/auth/me", authed(http.HandlerFunc(s.meHandler)))
	mux.Handle("POST /api/auth/logout", authed(http.HandlerFunc(s.logoutHandler)))
	mux.HandleFunc("GET /health", s.healthCheckHandler)
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())

	return middleware.Chain(middleware.RouteErrors(mux),
		middleware.TraceMiddleware,
		middleware.MetricsMiddleware,
		middleware.LoggerMiddleware(s.log),
	)
}

func (s *server) registerHandler(w http.ResponseWriter, r *http.Request) {
	var input models.Registration
	if err := response.Decode(r, &input); err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).Warn("[WARN] Invalid request format")
		response.FromError(w, err)
		return
	}

	sess, err := s.auth.Register(r.Context(), input)
	if err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).WithError(err).Warn("[WARN] Registration rejected")
		response.FromError(w, err)
		return
	}

	s.log.WithUserID(sess.User.ID).Info("[OK] User registered")
	response.Success(w, http.StatusCreated, "User registered successfully", sess)
}

func (s *server) loginHandler(w http.ResponseWriter, r *http.Request) {
	var input models.Credentials
	if err := response.Decode(r, &input); err != nil {
		response.FromError(w, err)
		return
	}

	sess, err := s.auth.Login(r.Context(), input)
	if err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).Warn("[WARN] Failed login attempt")
		response.FromError(w, err)
		return
	}

	s.log.WithUserID(sess.User.ID).WithField("role", sess.User.Role).Info("[OK] User logged in")
	response.Success(w, http.StatusOK, "Login successful", sess)
}

func (s *server) meHandler(w http.ResponseWriter, r *http.Request) {
	u, err := s.auth.CurrentUser(r.Context(), middleware.TokenFromContext(r.Context()))
	if err != nil {
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "User profile fetched", u)
}

func (s *server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).WithError(err).Error("[ERROR] Logout failed")
		response.FromError(w, err)
		return
	}
	response.Success(w, http.StatusOK, "Logged out", nil)
}

func (s *server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "UP",
		"service": "auth-service",
	}

	code := http.StatusOK
	switch {
	case s.ping == nil:
		health["database"] = "memory"
	case s.ping(r.Context()) != nil:
		health["status"] = "DOWN"
		health["database"] = "disconnected"
		code = http.StatusServiceUnavailable
	default:
		health["database"] = "connected"
	}
	response.JSON(w, code, health)
}

package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"civicfix/pkg/auth"
	"civicfix/pkg/logger"
	"civicfix/pkg/middleware"
	"civicfix/pkg/response"
)

const connectedMessage = `{"type":"connected","message":"Connection established"}`

type server struct {
	hub   *Hub
	authn middleware.Authenticator
	log   *logger.Logger
}

func (s *server) routes() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /health", s.healthHandler)
	api.Handle("GET /metrics", middleware.GetMetricsHandler())
	apiHandler := middleware.Chain(middleware.RouteErrors(api),
		middleware.TraceMiddleware,
		middleware.MetricsMiddleware,
		middleware.LoggerMiddleware(s.log),
	)

	// Streams stay out of the metrics and access log chain, their requests never finish.
	subscribe := middleware.TraceMiddleware(http.HandlerFunc(s.subscribeHandler))

	root := http.NewServeMux()
	root.Handle("GET /notifications/subscribe", subscribe)
	root.Handle("GET /subscribe", subscribe)
	root.Handle("/", apiHandler)
	return root
}

// streamToken accepts ?token= since EventSource cannot set headers.
func streamToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	token, _ := auth.BearerToken(r.Header.Get("Authorization"))
	return token
}

func (s *server) subscribeHandler(w http.ResponseWriter, r *http.Request) {
	token := streamToken(r)
	if token == "" {
		response.Error(w, http.StatusUnauthorized, "Missing token", "")
		return
	}
	claims, err := s.authn.Authenticate(r.Context(), token)
	if err != nil {
		s.log.WithTraceID(middleware.GetTraceID(r)).WithError(err).Warn("[WARN] Invalid token attempt")
		response.FromError(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		response.Error(w, http.StatusInternalServerError, "Streaming unsupported", "")
		return
	}

	client := NewClient(claims.Actor())
	if !s.hub.Register(client) {
		response.Error(w, http.StatusServiceUnavailable, "Notification hub is shutting down", "")
		return
	}
	defer s.hub.Unregister(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "data: %s\n\n", connectedMessage)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-client.Send:
			if !open {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				s.log.WithError(err).Error("[ERROR] Failed to encode notification")
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

func (s *server) healthHandler(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, map[string]interface{}{
		"status":            "UP",
		"service":           "notification-service",
		"connected_clients": s.hub.Clients(),
	})
}

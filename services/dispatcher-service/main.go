package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicfix/pkg/client"
	"civicfix/pkg/config"
	"civicfix/pkg/logger"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/queue"
	"civicfix/pkg/response"
	"civicfix/pkg/state"
)

const queueName = "dispatcher"

func main() {
	log := logger.New("dispatcher-service")

	cfg, err := config.Load("dispatcher-service")
	if err != nil {
		log.Fatalf("[ERROR] Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api, err := client.New(client.Config{
		BaseURL:       cfg.APIBaseURL,
		InternalToken: cfg.InternalToken,
		Logger:        log,
	})
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	view := state.New(api)
	if err := view.FetchAll(ctx, state.DefaultFilters()); err != nil {
		log.Warnf("[WARN] Initial sync failed, starting with an empty view: %s", view.Err())
	} else {
		log.Infof("[OK] Synced %d complaints from %s", len(view.Complaints()), cfg.APIBaseURL)
	}

	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Info("[OK] Dispatcher Service connected to RabbitMQ")

	deliveries, err := queue.Subscribe(ch, queue.Exchange, queueName,
		models.EventCreated,
		models.EventUpdated,
		models.EventStatusUpdate,
		models.EventCommented,
		models.EventDeleted,
	)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

	d := &dispatcher{api: api, view: view, log: log}
	go queue.Consume(ctx, deliveries, d.handle, log)
	log.Infof("[INFO] Waiting for complaints in queue '%s'", queueName)

	middleware.RegisterMetrics()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		health := d.summary()
		health["status"] = "UP"
		health["service"] = "dispatcher-service"
		response.JSON(w, http.StatusOK, health)
	})
	mux.Handle("GET /metrics", middleware.GetMetricsHandler())

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           middleware.Chain(middleware.RouteErrors(mux), middleware.TraceMiddleware, middleware.MetricsMiddleware),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Infof("[INFO] Dispatcher health endpoint on port %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

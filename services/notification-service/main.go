package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"civicfix/pkg/auth"
	"civicfix/pkg/config"
	"civicfix/pkg/database"
	"civicfix/pkg/logger"
	"civicfix/pkg/middleware"
	"civicfix/pkg/models"
	"civicfix/pkg/queue"
	"civicfix/pkg/security"
	"civicfix/pkg/session"
)

const queueName = "notifications"

func main() {
	log := logger.New("notification-service")

	cfg, err := config.Load("notification-service")
	if err != nil {
		log.Fatalf("[ERROR] Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := security.DeriveKey(cfg.AnonEncKey, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("[ERROR] Invalid ANON_ENC_KEY: %v", err)
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		log.Fatalf("[ERROR] Failed to create sealer: %v", err)
	}

	hub := NewHub(sealer, log)
	go hub.Run(ctx)

	log.Infof("[INFO] Connecting to RabbitMQ at %s", cfg.RabbitMQURL)
	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("[ERROR] Failed to connect to RabbitMQ: %v", err)
	}
	defer conn.Close()
	defer ch.Close()
	log.Info("[OK] Connected to RabbitMQ")

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
	go queue.Consume(ctx, deliveries, hub.HandleEvent, log)
	log.Infof("[INFO] Listening to %s queue", queueName)

	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		revoker = session.NewRedisRevoker(rdb)
	}
	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("[ERROR] Invalid token settings: %v", err)
	}

	middleware.RegisterMetrics()
	log.Info("[INFO] Prometheus metrics initialized")

	srv := &server{hub: hub, authn: auth.NewVerifier(tokens, revoker), log: log}
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Infof("[INFO] Notification Service running on port %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

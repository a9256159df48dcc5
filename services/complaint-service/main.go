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
	"civicfix/pkg/media"
	"civicfix/pkg/middleware"
	"civicfix/pkg/queue"
	"civicfix/pkg/security"
	"civicfix/pkg/service"
	"civicfix/pkg/session"
	"civicfix/pkg/store"
)

func main() {
	log := logger.New("complaint-service")

	cfg, err := config.Load("complaint-service")
	if err != nil {
		log.Fatalf("[ERROR] Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server{
		log:           log,
		internalToken: cfg.InternalToken,
		mapsAPIKey:    cfg.MapsAPIKey,
	}
	if cfg.InternalToken == "" {
		log.Warn("[WARN] INTERNAL_TOKEN is empty, /internal endpoints are unprotected")
	}

	var repo store.ComplaintRepository
	switch cfg.StoreBackend {
	case config.BackendMongo:
		db, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to MongoDB: %v", err)
		}
		defer db.Client().Disconnect(context.Background())

		mongoRepo := store.NewMongoComplaintRepository(db)
		if err := mongoRepo.EnsureSeed(ctx); err != nil {
			log.Fatalf("[ERROR] Failed to seed complaints: %v", err)
		}
		srv.ping = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
		repo = mongoRepo
		log.Info("[OK] Connected to MongoDB")
	default:
		latency := store.NoLatency()
		if cfg.SimulateLatency {
			latency = store.DefaultLatency()
		}
		repo = store.NewComplaintStore(store.WithLatency(latency))
		log.Infof("[INFO] Using in-memory complaint store (simulated latency: %t)", cfg.SimulateLatency)
	}

	var publisher queue.Publisher = queue.NopPublisher{}
	conn, ch, err := queue.ConnectRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		log.Warnf("[WARN] RabbitMQ unavailable, events will not be published: %v", err)
	} else {
		defer conn.Close()
		defer ch.Close()
		if err := queue.DeclareExchange(ch, queue.Exchange); err != nil {
			log.Fatalf("[ERROR] %v", err)
		}
		amqpPublisher, err := queue.NewAMQPPublisher(ch, queue.Exchange)
		if err != nil {
			log.Fatalf("[ERROR] Failed to create publisher: %v", err)
		}
		publisher = amqpPublisher
		log.Info("[OK] Connected to RabbitMQ")
	}

	key, err := security.DeriveKey(cfg.AnonEncKey, cfg.JWTSecret)
	if err != nil {
		log.Fatalf("[ERROR] Invalid ANON_ENC_KEY: %v", err)
	}
	sealer, err := security.NewSealer(key)
	if err != nil {
		log.Fatalf("[ERROR] Failed to create sealer: %v", err)
	}

	srv.svc, err = service.NewComplaintService(repo,
		service.WithPublisher(publisher),
		service.WithSealer(sealer),
		service.WithLogger(log),
	)
	if err != nil {
		log.Fatalf("[ERROR] %v", err)
	}

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
	srv.authn = auth.NewVerifier(tokens, revoker)

	if cfg.MinIO.Endpoint != "" {
		mc, err := media.NewClient(ctx, cfg.MinIO)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to MinIO: %v", err)
		}
		srv.uploads = media.NewUploader(mc, cfg.MinIO.Bucket, media.PublicURL(cfg.MinIO))
		log.Infof("[OK] Image uploads stored in bucket %s", cfg.MinIO.Bucket)
	} else {
		log.Warn("[WARN] MINIO_ENDPOINT is empty, image uploads are disabled")
	}

	middleware.RegisterMetrics()

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

	log.Infof("[INFO] Complaint Service running on port %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

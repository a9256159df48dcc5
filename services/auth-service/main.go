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
	"civicfix/pkg/session"
	"civicfix/pkg/store"
)

const revokedCacheSize = 10000

func main() {
	log := logger.New("auth-service")

	cfg, err := config.Load("auth-service")
	if err != nil {
		log.Fatalf("[ERROR] Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &server{log: log}

	var users auth.UserRepository
	if cfg.StoreBackend == config.BackendPostgres {
		db, err := database.ConnectPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to database: %v", err)
		}
		repo := store.NewGormUserRepository(db)

		log.Info("[INFO] Running auto migration...")
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("[ERROR] Migration failed: %v", err)
		}
		log.Info("[OK] Migration success")

		sqlDB, err := db.DB()
		if err != nil {
			log.Fatalf("[ERROR] Failed to get sql handle: %v", err)
		}
		srv.ping = sqlDB.PingContext
		users = repo
	} else {
		latency := time.Duration(0)
		if cfg.SimulateLatency {
			latency = 500 * time.Millisecond
		}
		mem, err := store.NewUserStore(store.WithUserLatency(latency))
		if err != nil {
			log.Fatalf("[ERROR] Failed to seed users: %v", err)
		}
		log.Info("[INFO] Using in-memory user store with demo accounts")
		users = mem
	}

	var revoker auth.Revoker
	if cfg.RedisAddr != "" {
		rdb, err := database.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Fatalf("[ERROR] Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		revoker = session.NewRedisRevoker(rdb)
		log.Info("[OK] Token revocation backed by redis")
	} else {
		mem, err := session.NewMemoryRevoker(revokedCacheSize)
		if err != nil {
			log.Fatalf("[ERROR] Failed to create revocation cache: %v", err)
		}
		revoker = mem
	}

	tokens, err := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		log.Fatalf("[ERROR] Invalid token settings: %v", err)
	}
	srv.auth = auth.NewService(users, tokens, revoker)

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

	log.Infof("[INFO] Auth Service running on port %s", cfg.Addr())
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("[ERROR] Server failed: %v", err)
	}
}

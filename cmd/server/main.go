package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/cache"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/config"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/httpapi"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/service"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store/memory"
	"github.com/Franckfetuedirane/FastGestiArt-sub000/internal/store/postgres"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := cfg.ValidateSecurity(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, cleanup, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository init failed", zap.Error(err))
	}
	defer cleanup()

	summaryCache := buildCache(cfg, logger)
	defer func() { _ = summaryCache.Close() }()

	svc := service.New(repo, summaryCache, logger)
	api := httpapi.NewServer(svc, cfg.AuthSecret, cfg.TokenTTL, cfg.AllowedOrigin, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", zap.Error(err))
	}
	logger.Info("server stopped")
}

func buildRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using postgres repository")
		return pg, func() { _ = pg.Close() }, nil
	}
	logger.Info("DATABASE_URL not set, using seeded in-memory repository")
	return memory.NewSeeded(), func() {}, nil
}

func buildCache(cfg config.Config, logger *zap.Logger) cache.SummaryCache {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, dashboard cache disabled")
		return cache.NewNoop()
	}
	redisCache, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SummaryTTL, logger)
	if err != nil {
		logger.Warn("redis unreachable, dashboard cache disabled", zap.Error(err))
		return cache.NewNoop()
	}
	logger.Info("using redis dashboard cache", zap.String("addr", cfg.RedisAddr))
	return redisCache
}

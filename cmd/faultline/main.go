package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/faultline/faultline/internal/app"
	"github.com/faultline/faultline/internal/authz"
	"github.com/faultline/faultline/internal/observability"
	"github.com/faultline/faultline/internal/platform/cache"
	"github.com/faultline/faultline/internal/platform/db"
	"github.com/faultline/faultline/internal/shared"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, "faultline_session", cfg.SessionTTL, cfg.IsProduction())
	metrics := observability.NewMetrics()

	registry := authz.SeedRegistry()
	roleTable := authz.SeedRoleTable()
	authzRepo := authz.NewRepository(dbpool)
	if err := authzRepo.SyncRegistry(ctx, registry); err != nil {
		logger.Error("sync capability registry", slog.Any("error", err))
		os.Exit(1)
	}

	resolver := authz.NewResolver(registry, roleTable, authzRepo, authzRepo)
	authzCache := authz.NewRedisCache(redisClient)
	authzMetrics := authz.NewMetrics(metrics.Registerer())
	cachedResolver := authz.NewCachedResolver(resolver, authzCache, cfg.AuthzCacheTTL, authzMetrics, logger)

	authzMiddleware := authz.Middleware{Checker: cachedResolver, Logger: logger, TeamParam: "teamID"}
	admin := authz.NewAdmin(registry, authzRepo, authzRepo, cachedResolver, logger)
	authzHandler := authz.NewHandler(logger, cachedResolver, admin, authzMiddleware)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: sessionManager,
		AuthzHandler:   authzHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", slog.Any("error", err))
	}
}

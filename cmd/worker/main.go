package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/faultline/faultline/internal/app"
	"github.com/faultline/faultline/internal/authz"
	"github.com/faultline/faultline/internal/platform/cache"
	"github.com/faultline/faultline/internal/platform/db"
	"github.com/faultline/faultline/internal/projects"
	"github.com/faultline/faultline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	registry := authz.SeedRegistry()
	roleTable := authz.SeedRoleTable()
	authzRepo := authz.NewRepository(dbpool)
	resolver := authz.NewResolver(registry, roleTable, authzRepo, authzRepo)
	authzCache := authz.NewRedisCache(redisClient)
	cachedResolver := authz.NewCachedResolver(resolver, authzCache, cfg.AuthzCacheTTL, nil, logger)

	projectsRepo := projects.NewRepository(dbpool)
	warmupJob := jobs.NewAuthzWarmupJob(cachedResolver, authzRepo, projectsRepo, logger, nil)

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuthzWarmup, Handler: warmupJob.Handle},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("starting worker")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

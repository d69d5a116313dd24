package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/basketwatch/basketwatch/internal/app"
	"github.com/basketwatch/basketwatch/internal/insights"
	"github.com/basketwatch/basketwatch/internal/platform/cache"
	"github.com/basketwatch/basketwatch/internal/platform/db"
	"github.com/basketwatch/basketwatch/internal/pricing"
	"github.com/basketwatch/basketwatch/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

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

	insightsCache := insights.NewCache(redisClient, cfg.CacheTTL)
	if err := insightsCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}
	insightsRepo := insights.NewRepository(pool)
	insightsService := insights.NewService(insightsRepo, insightsCache, cfg.TrendMinSamples, cfg.StaleMaxAge)

	guard := pricing.NewGuard(cfg.GuardConfig())

	anomalyJob := jobs.NewAnomalySweepJob(pool, guard, logger, nil)
	staleJob := jobs.NewStaleSweepJob(insightsRepo, logger, nil)
	warmupJob := jobs.NewInsightsWarmupJob(insightsService, logger, nil)

	anomalyTask, err := jobs.NewAnomalySweepTask(jobs.AnomalySweepPayload{WindowDays: 7})
	if err != nil {
		logger.Error("build anomaly task", slog.Any("error", err))
		os.Exit(1)
	}
	staleTask, err := jobs.NewStaleSweepTask(jobs.StaleSweepPayload{MaxAgeDays: int(cfg.StaleMaxAge.Hours() / 24)})
	if err != nil {
		logger.Error("build stale task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewWarmupTask()
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPriceAnomalySweep, Handler: anomalyJob.Handle},
			{Type: jobs.TaskStalePriceSweep, Handler: staleJob.Handle},
			{Type: jobs.TaskInsightsWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.AnomalySweepCron, Task: anomalyTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.StaleSweepCron, Task: staleTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.WarmupCron, Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

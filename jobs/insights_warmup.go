package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/basketwatch/basketwatch/internal/insights"
	jobmetrics "github.com/basketwatch/basketwatch/internal/jobs"
)

// InsightsWarmupJob pre-populates the derived view caches so the first reader
// after an invalidation does not pay the rebuild.
type InsightsWarmupJob struct {
	Insights *insights.Service
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewInsightsWarmupJob wires dependencies for the warmup handler.
func NewInsightsWarmupJob(svc *insights.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *InsightsWarmupJob {
	return &InsightsWarmupJob{
		Insights: svc,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes warmup tasks.
func (j *InsightsWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("insights warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if j.Insights == nil {
		return errors.New("insights warmup: service not configured")
	}

	start := j.now()
	tracker := j.metrics().Track(TaskInsightsWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger()
	logger.Info("starting insights warmup")

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"best_prices", func(ctx context.Context) error {
			_, err := j.Insights.BestPrices(ctx)
			return err
		}},
		{"trends", func(ctx context.Context) error {
			_, err := j.Insights.Trends(ctx)
			return err
		}},
		{"comparisons", func(ctx context.Context) error {
			_, err := j.Insights.Comparisons(ctx)
			return err
		}},
		{"dashboard", func(ctx context.Context) error {
			_, err := j.Insights.Dashboard(ctx)
			return err
		}},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			resultErr = err
			logger.Error("warm view", slog.String("view", step.name), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("completed insights warmup", slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *InsightsWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskInsightsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskInsightsWarmup))
}

func (j *InsightsWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *InsightsWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

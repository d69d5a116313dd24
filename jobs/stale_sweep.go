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

// StaleSweepJob reports (product, store) prices whose latest observation is
// past the cutoff, so the community knows which prices need a fresh look.
type StaleSweepJob struct {
	Repo    insights.Repository
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewStaleSweepJob initialises the stale price sweep handler.
func NewStaleSweepJob(repo insights.Repository, logger *slog.Logger, metrics *jobmetrics.Metrics) *StaleSweepJob {
	return &StaleSweepJob{
		Repo:    repo,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the stale price sweep.
func (j *StaleSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("stale sweep: handler not configured")
	}
	var payload StaleSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	maxAge := insights.DefaultStaleAge
	if payload.MaxAgeDays > 0 {
		maxAge = time.Duration(payload.MaxAgeDays) * 24 * time.Hour
	}

	start := j.now()
	tracker := j.metrics().Track(TaskStalePriceSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("max_age_days", int(maxAge.Hours()/24)))
	logger.Info("starting stale price sweep")

	if j.Repo == nil {
		resultErr = errors.New("stale sweep: repository not configured")
		return resultErr
	}
	snap, err := insights.LoadSnapshot(ctx, j.Repo)
	if err != nil {
		resultErr = err
		logger.Error("load snapshot", slog.Any("error", err))
		return resultErr
	}

	dash := insights.BuildDashboard(snap, start, maxAge)
	for _, entry := range dash.StaleEntries {
		logger.Warn("price needs refreshing",
			slog.Int64("product_id", entry.ProductID),
			slog.String("product", entry.ProductName),
			slog.Int64("store_id", entry.StoreID),
			slog.String("store", entry.StoreName),
			slog.Int("age_days", entry.AgeDays),
		)
	}
	j.metrics().SetStaleEntries(len(dash.StaleEntries))

	logger.Info("completed stale price sweep",
		slog.Int("stale", len(dash.StaleEntries)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *StaleSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskStalePriceSweep))
	}
	return slog.Default().With(slog.String("job", TaskStalePriceSweep))
}

func (j *StaleSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *StaleSweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPriceAnomalySweep re-checks recent purchases against the guard.
	TaskPriceAnomalySweep = "prices:anomaly_sweep"
	// TaskStalePriceSweep reports (product, store) prices past the cutoff.
	TaskStalePriceSweep = "prices:stale_sweep"
	// TaskInsightsWarmup pre-populates the derived view caches.
	TaskInsightsWarmup = "insights:warmup"
)

// AnomalySweepPayload tunes the anomaly sweep window.
type AnomalySweepPayload struct {
	WindowDays int `json:"window_days"`
}

// NewAnomalySweepTask constructs an Asynq task for the anomaly sweep.
func NewAnomalySweepTask(payload AnomalySweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPriceAnomalySweep, data), nil
}

// StaleSweepPayload tunes the staleness cutoff in days. Zero uses the
// configured default.
type StaleSweepPayload struct {
	MaxAgeDays int `json:"max_age_days"`
}

// NewStaleSweepTask constructs an Asynq task for the stale price sweep.
func NewStaleSweepTask(payload StaleSweepPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStalePriceSweep, data), nil
}

// WarmupPayload is reserved for future scoping; the warmup currently rebuilds
// every view.
type WarmupPayload struct{}

// NewWarmupTask constructs an Asynq task for the cache warmup.
func NewWarmupTask() (*asynq.Task, error) {
	data, err := json.Marshal(WarmupPayload{})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskInsightsWarmup, data), nil
}

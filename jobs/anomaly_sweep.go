package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/basketwatch/basketwatch/internal/jobs"
	"github.com/basketwatch/basketwatch/internal/pricing"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// AnomalySweepJob re-runs the deviation guard over recently submitted
// purchases. Admin overrides and data entered before a guard tightening both
// slip past the submit-time check; the sweep surfaces them after the fact.
type AnomalySweepJob struct {
	Pool    *pgxpool.Pool
	Guard   *pricing.Guard
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewAnomalySweepJob initialises the sweep handler.
func NewAnomalySweepJob(pool *pgxpool.Pool, guard *pricing.Guard, logger *slog.Logger, metrics *jobmetrics.Metrics) *AnomalySweepJob {
	if guard == nil {
		guard = pricing.NewGuard(pricing.DefaultGuardConfig())
	}
	return &AnomalySweepJob{
		Pool:    pool,
		Guard:   guard,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep.
func (j *AnomalySweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("anomaly sweep: handler not configured")
	}
	var payload AnomalySweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.WindowDays <= 0 {
		payload.WindowDays = 7
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPriceAnomalySweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(slog.Int("window_days", payload.WindowDays))
	logger.Info("starting anomaly sweep")

	checked, flagged, err := j.sweep(ctx, payload, start)
	if err != nil {
		resultErr = err
		logger.Error("sweep failed", slog.Any("error", err))
		return resultErr
	}

	for _, f := range flagged {
		logger.Warn("suspicious price in recent history",
			slog.Int64("purchase_id", f.PurchaseID),
			slog.Int64("product_id", f.ProductID),
			slog.Int64("store_id", f.StoreID),
			slog.String("severity", string(f.Verdict.Severity)),
			slog.String("detail", f.Verdict.Message),
		)
		j.metrics().AddAnomalies(string(f.Verdict.Severity), f.ProductID, f.StoreID, 1)
	}

	logger.Info("completed anomaly sweep",
		slog.Int("checked", checked),
		slog.Int("flagged", len(flagged)),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

type flaggedPurchase struct {
	PurchaseID int64
	ProductID  int64
	StoreID    int64
	Verdict    pricing.Verdict
}

func (j *AnomalySweepJob) sweep(ctx context.Context, payload AnomalySweepPayload, now time.Time) (int, []flaggedPurchase, error) {
	if j.Pool == nil {
		return 0, nil, errors.New("anomaly sweep: pool not configured")
	}

	products, err := j.loadProducts(ctx)
	if err != nil {
		return 0, nil, err
	}
	purchases, err := j.loadPurchases(ctx)
	if err != nil {
		return 0, nil, err
	}

	byProduct := make(map[int64][]pricing.Purchase)
	for _, p := range purchases {
		byProduct[p.ProductID] = append(byProduct[p.ProductID], p)
	}

	cutoff := now.AddDate(0, 0, -payload.WindowDays).UnixNano()
	checked := 0
	var flagged []flaggedPurchase
	for _, p := range purchases {
		if p.Timestamp < cutoff {
			continue
		}
		product, ok := products[p.ProductID]
		if !ok {
			continue
		}
		checked++

		// The purchase under inspection is excluded from its own baseline.
		history := make([]pricing.Purchase, 0, len(byProduct[p.ProductID])-1)
		for _, h := range byProduct[p.ProductID] {
			if h.ID != p.ID {
				history = append(history, h)
			}
		}

		verdict := j.Guard.Evaluate(pricing.Candidate{
			ProductID: p.ProductID,
			Price:     p.Price,
			Quantity:  p.Quantity,
		}, product, history)
		if verdict.Severity == pricing.SeverityNone {
			continue
		}
		flagged = append(flagged, flaggedPurchase{
			PurchaseID: p.ID,
			ProductID:  p.ProductID,
			StoreID:    p.StoreID,
			Verdict:    verdict,
		})
	}
	return checked, flagged, nil
}

func (j *AnomalySweepJob) loadProducts(ctx context.Context) (map[int64]pricing.Product, error) {
	rows, err := j.Pool.Query(ctx, `SELECT id, name, brand, unit FROM products`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[int64]pricing.Product)
	for rows.Next() {
		var p pricing.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Brand, &p.Unit); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

func (j *AnomalySweepJob) loadPurchases(ctx context.Context) ([]pricing.Purchase, error) {
	rows, err := j.Pool.Query(ctx,
		`SELECT id, product_id, store_id, description, price, quantity, ts FROM purchases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []pricing.Purchase
	for rows.Next() {
		var p pricing.Purchase
		if err := rows.Scan(&p.ID, &p.ProductID, &p.StoreID, &p.Description,
			&p.Price, &p.Quantity, &p.Timestamp); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}

func (j *AnomalySweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPriceAnomalySweep))
	}
	return slog.Default().With(slog.String("job", TaskPriceAnomalySweep))
}

func (j *AnomalySweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *AnomalySweepJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

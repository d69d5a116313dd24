package jobmetrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	anomalies *prometheus.CounterVec
	stale     *prometheus.GaugeVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAnomalies increments the anomaly counter for the supplied severity and
// (product, store) scope.
func (m *Metrics) AddAnomalies(severity string, productID, storeID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	product := "0"
	store := "0"
	if productID > 0 {
		product = formatInt(productID)
	}
	if storeID > 0 {
		store = formatInt(storeID)
	}
	m.anomalies.WithLabelValues(severity, product, store).Add(float64(count))
}

// SetStaleEntries records the current number of outdated (product, store)
// prices found by the stale sweep.
func (m *Metrics) SetStaleEntries(count int) {
	if m == nil {
		return
	}
	m.stale.WithLabelValues().Set(float64(count))
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basketwatch_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basketwatch_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "basketwatch_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "basketwatch_price_anomalies_total",
		Help: "Suspicious prices found by the sweep, by severity and scope.",
	}, []string{"severity", "product", "store"})
	stale := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "basketwatch_stale_prices",
		Help: "Number of (product, store) prices older than the staleness cutoff.",
	}, []string{})
	registerer.MustRegister(runs, failures, duration, anomalies, stale)
	return &Metrics{runs: runs, failures: failures, duration: duration, anomalies: anomalies, stale: stale}
}

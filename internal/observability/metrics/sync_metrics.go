package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
	SyncStatusSkipped   = "skipped"

	SyncStageCustomers     = "customers"
	SyncStageSubscriptions = "subscriptions"
	SyncStageEvents        = "events"
	SyncStageRollup        = "rollup"
	SyncStageAnalytics     = "analytics"
)

// SyncMetrics tracks ingestion throughput and health per resource type.
type SyncMetrics struct {
	runs           *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	pages          *prometheus.CounterVec
	records        *prometheus.CounterVec
	errors         *prometheus.CounterVec
	lockContention prometheus.Counter
	throttleWait   prometheus.Histogram

	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	runLoopLag  prometheus.Observer
}

var (
	syncMetricsOnce sync.Once
	syncMetrics     *SyncMetrics
)

// InitSync registers the process-wide sync metrics under namespace. Only the
// first call, or the first Sync, takes effect.
func InitSync(namespace string) *SyncMetrics {
	syncMetricsOnce.Do(func() {
		syncMetrics = NewSyncMetrics(prometheus.DefaultRegisterer, namespace)
	})
	return syncMetrics
}

// Sync returns the process-wide sync metrics registered on the default registry.
func Sync() *SyncMetrics {
	return InitSync("revlens")
}

// NewSyncMetrics builds and registers the collectors on registerer.
func NewSyncMetrics(registerer prometheus.Registerer, namespace string) *SyncMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = "revlens"
	}

	m := &SyncMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_runs_total",
			Help:      "Merchant sync attempts by trigger and final status.",
		}, []string{"trigger", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Wall time of one merchant sync including analytics recompute.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		}, []string{"trigger"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_pages_total",
			Help:      "Provider list pages fetched by resource.",
		}, []string{"resource"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_records_total",
			Help:      "Provider records persisted by resource.",
		}, []string{"resource"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Sync failures by stage and error type.",
		}, []string{"stage", "error_type"}),
		lockContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_lock_contention_total",
			Help:      "Sync attempts rejected because the merchant was already syncing.",
		}),
		throttleWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_throttle_wait_seconds",
			Help:      "Time spent waiting on the outbound call throttle.",
			Buckets:   []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job runs by name.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scheduler_job_duration_seconds",
			Help:      "Scheduler job latency.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 600, 1800, 3600},
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_errors_total",
			Help:      "Scheduler job errors by type.",
		}, []string{"job", "error_type"}),
	}
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "scheduler_runloop_lag_seconds",
		Help:      "Scheduler run loop lag beyond the configured interval.",
		Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300},
	})
	m.runLoopLag = runLoopLag

	registerer.MustRegister(
		m.runs,
		m.duration,
		m.pages,
		m.records,
		m.errors,
		m.lockContention,
		m.throttleWait,
		m.jobRuns,
		m.jobDuration,
		m.jobErrors,
		runLoopLag,
	)
	return m
}

func (m *SyncMetrics) ObserveRun(trigger, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(trigger, status).Inc()
	if status != SyncStatusSkipped {
		m.duration.WithLabelValues(trigger).Observe(duration.Seconds())
	}
}

func (m *SyncMetrics) IncPage(resource string) {
	if m == nil {
		return
	}
	m.pages.WithLabelValues(resource).Inc()
}

func (m *SyncMetrics) AddRecords(resource string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.records.WithLabelValues(resource).Add(float64(count))
}

func (m *SyncMetrics) IncError(stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(stage, ClassifyError(err)).Inc()
}

func (m *SyncMetrics) IncLockContention() {
	if m == nil {
		return
	}
	m.lockContention.Inc()
}

func (m *SyncMetrics) ObserveThrottleWait(d time.Duration) {
	if m == nil {
		return
	}
	m.throttleWait.Observe(d.Seconds())
}

func (m *SyncMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SyncMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SyncMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyError(err)).Inc()
}

func (m *SyncMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil || d <= 0 {
		return
	}
	m.runLoopLag.Observe(d.Seconds())
}

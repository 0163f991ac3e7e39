package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerJobReasonDeadlineExceeded = "deadline_exceeded"
	WorkerJobReasonCanceled         = "canceled"
	WorkerJobReasonNoTenant         = "no_tenant"
	WorkerJobReasonDB               = "db"
	WorkerJobReasonPanic            = "panic"
	WorkerJobReasonUnknown          = "unknown"
)

// WorkerMetrics captures background job health.
type WorkerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	jobsActive  prometheus.Gauge
	jobsQueued  prometheus.Gauge
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the singleton worker metrics registry.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

// WorkerWithConfig returns the singleton worker metrics registry using config labels.
func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = NewWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// ResetWorkerMetricsForTest resets the worker metrics singleton for tests.
func ResetWorkerMetricsForTest() {
	workerMetricsOnce = sync.Once{}
	workerMetrics = nil
}

// NewWorkerMetrics registers worker instruments on registerer.
func NewWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "compligenie_worker_job_runs_total",
		Help:        "Background job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "compligenie_worker_job_duration_seconds",
		Help:        "Background job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "compligenie_worker_job_timeouts_total",
		Help:        "Background jobs that hit their deadline.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "compligenie_worker_job_errors_total",
		Help:        "Background job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "compligenie_worker_jobs_active",
		Help:        "Background jobs currently running.",
		ConstLabels: constLabels,
	})
	jobsQueued := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "compligenie_worker_jobs_queued",
		Help:        "Background jobs waiting for a worker slot.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(jobRuns, jobDuration, jobTimeouts, jobErrors, jobsActive, jobsQueued)

	return &WorkerMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobTimeouts: jobTimeouts,
		jobErrors:   jobErrors,
		jobsActive:  jobsActive,
		jobsQueued:  jobsQueued,
	}
}

func (m *WorkerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *WorkerMetrics) IncJobTimeout(job string) {
	if m == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(job).Inc()
}

func (m *WorkerMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyWorkerJobReason(err)).Inc()
}

func (m *WorkerMetrics) IncJobPanic(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, WorkerJobReasonPanic).Inc()
}

func (m *WorkerMetrics) SetActive(n int64) {
	if m == nil {
		return
	}
	m.jobsActive.Set(float64(n))
}

func (m *WorkerMetrics) SetQueued(n int64) {
	if m == nil {
		return
	}
	m.jobsQueued.Set(float64(n))
}

// ClassifyWorkerJobReason maps a job error to a bounded label value.
func ClassifyWorkerJobReason(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return WorkerJobReasonDeadlineExceeded
	case errors.Is(err, context.Canceled):
		return WorkerJobReasonCanceled
	case errors.Is(err, tenantcontext.ErrNoTenant):
		return WorkerJobReasonNoTenant
	case errors.As(err, &pgErr), errors.Is(err, gorm.ErrInvalidTransaction), errors.Is(err, gorm.ErrInvalidDB):
		return WorkerJobReasonDB
	default:
		return WorkerJobReasonUnknown
	}
}

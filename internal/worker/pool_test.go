package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	obsmetrics "github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/telemetry/correlation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestPool(t *testing.T, cfg Config) (*Pool, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := obsmetrics.NewWorkerMetrics(reg, obsmetrics.Config{ServiceName: "compligenie", Environment: "test"})
	pool := New(Params{
		Config:  cfg,
		Log:     zap.NewNop(),
		Clock:   clock.SystemClock{},
		Metrics: m,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = pool.Stop(ctx)
	})
	return pool, reg
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func stop(t *testing.T, pool *Pool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Stop(ctx))
}

func TestSubmitInheritsTenantAndOutlivesCaller(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 2, JobTimeout: time.Second})

	tenant := tenantcontext.Identity{ID: uuid.New(), DisplayName: "Legal"}
	reqCtx, scope := tenantcontext.Begin(context.Background())
	tenantcontext.Bind(reqCtx, tenant)
	reqCtx, cancel := context.WithCancel(reqCtx)

	release := make(chan struct{})
	seen := make(chan tenantcontext.Identity, 1)
	jobErr := make(chan error, 1)

	jobID, err := pool.Submit(reqCtx, "generate_policy", func(ctx context.Context) error {
		<-release
		id, _ := tenantcontext.Current(ctx)
		seen <- id
		jobErr <- ctx.Err()
		return nil
	})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	// the request finishes before the job runs
	cancel()
	scope.End()
	close(release)

	stop(t, pool)
	assert.Equal(t, tenant, <-seen)
	assert.NoError(t, <-jobErr)
}

func TestSubmitIsolatedStartsUnbound(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 1, JobTimeout: time.Second})

	caller := tenantcontext.WithIdentity(context.Background(), tenantcontext.Identity{ID: uuid.New()})
	target := tenantcontext.Identity{ID: uuid.New(), DisplayName: "New Partner"}

	var before atomic.Bool
	var after atomic.Value
	_, err := pool.SubmitIsolated(caller, "welcome_email", func(ctx context.Context) error {
		_, bound := tenantcontext.Current(ctx)
		before.Store(bound)
		tenantcontext.Bind(ctx, target)
		id, _ := tenantcontext.Current(ctx)
		after.Store(id)
		return nil
	})
	require.NoError(t, err)

	stop(t, pool)
	assert.False(t, before.Load())
	assert.Equal(t, target, after.Load())

	// the caller is unaffected by the job's binding
	id, _ := tenantcontext.Current(caller)
	assert.NotEqual(t, target.ID, id.ID)
}

func TestJobContextCarriesJobFields(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 1, JobTimeout: time.Second})

	got := make(chan obscontext.Job, 1)
	jobID, err := pool.Submit(context.Background(), "welcome_email", func(ctx context.Context) error {
		job, _ := obscontext.JobFromContext(ctx)
		got <- job
		return nil
	})
	require.NoError(t, err)

	stop(t, pool)
	job := <-got
	assert.Equal(t, "welcome_email", job.Name)
	assert.Equal(t, jobID, job.ID)
}

func TestJobIDIsStampedWithPoolClock(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pool := New(Params{
		Config: Config{Concurrency: 1, JobTimeout: time.Second},
		Log:    zap.NewNop(),
		Clock:  clock.NewFakeClock(now),
	})

	first, err := pool.Submit(context.Background(), "policy_generate", func(context.Context) error { return nil })
	require.NoError(t, err)
	second, err := pool.Submit(context.Background(), "policy_generate", func(context.Context) error { return nil })
	require.NoError(t, err)
	stop(t, pool)

	issued, err := correlation.IssuedAt(first)
	require.NoError(t, err)
	assert.True(t, now.Equal(issued))
	assert.Less(t, first, second)
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 2, JobTimeout: time.Second})

	var running, peak atomic.Int32
	for i := 0; i < 8; i++ {
		_, err := pool.Submit(context.Background(), "bounded", func(ctx context.Context) error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			running.Add(-1)
			return nil
		})
		require.NoError(t, err)
	}

	stop(t, pool)
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestJobTimeoutIsCounted(t *testing.T) {
	pool, reg := newTestPool(t, Config{Concurrency: 1, JobTimeout: 20 * time.Millisecond})

	_, err := pool.Submit(context.Background(), "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)
	stop(t, pool)

	assert.Equal(t, float64(1), counterValue(t, reg, "compligenie_worker_job_timeouts_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "compligenie_worker_job_errors_total"))
	assert.Equal(t, float64(1), counterValue(t, reg, "compligenie_worker_job_runs_total"))
}

func TestPanicIsRecovered(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 1, JobTimeout: time.Second})

	_, err := pool.Submit(context.Background(), "explodes", func(ctx context.Context) error {
		panic("boom")
	})
	require.NoError(t, err)

	ran := make(chan struct{})
	_, err = pool.Submit(context.Background(), "after", func(ctx context.Context) error {
		close(ran)
		return nil
	})
	require.NoError(t, err)

	stop(t, pool)
	select {
	case <-ran:
	default:
		t.Fatal("expected pool to keep running after a panic")
	}
}

func TestStopRejectsNewJobs(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 1, JobTimeout: time.Second})
	stop(t, pool)

	_, err := pool.Submit(context.Background(), "late", func(ctx context.Context) error { return nil })
	assert.True(t, errors.Is(err, ErrPoolClosed))
}

func TestStopHonorsDeadline(t *testing.T) {
	pool, _ := newTestPool(t, Config{Concurrency: 1, JobTimeout: time.Second})

	release := make(chan struct{})
	_, err := pool.Submit(context.Background(), "stuck", func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, pool.Stop(ctx), context.DeadlineExceeded)
	close(release)
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamesbarnes665/compliGenie-backend/internal/clock"
	"github.com/jamesbarnes665/compliGenie-backend/internal/config"
	obscontext "github.com/jamesbarnes665/compliGenie-backend/internal/observability/context"
	"github.com/jamesbarnes665/compliGenie-backend/internal/observability/logger"
	obsmetrics "github.com/jamesbarnes665/compliGenie-backend/internal/observability/metrics"
	"github.com/jamesbarnes665/compliGenie-backend/internal/tenantcontext"
	"github.com/jamesbarnes665/compliGenie-backend/pkg/telemetry/correlation"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	defaultConcurrency = 8
	defaultJobTimeout  = 2 * time.Minute
)

var ErrPoolClosed = errors.New("worker_pool_closed")

// JobFunc is the unit of background work.
type JobFunc func(ctx context.Context) error

type Config struct {
	Concurrency int64
	JobTimeout  time.Duration
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Concurrency: cfg.Worker.Concurrency,
		JobTimeout:  cfg.Worker.JobTimeout,
	}
}

type Params struct {
	fx.In

	Config  Config
	Log     *zap.Logger
	Clock   clock.Clock
	Metrics *obsmetrics.WorkerMetrics `optional:"true"`
}

// Pool runs jobs in the background with bounded concurrency.
type Pool struct {
	cfg     Config
	log     *zap.Logger
	clock   clock.Clock
	metrics *obsmetrics.WorkerMetrics
	sem     *semaphore.Weighted

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	active atomic.Int64
	queued atomic.Int64
}

func New(p Params) *Pool {
	cfg := p.Config
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = defaultJobTimeout
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}

	return &Pool{
		cfg:     cfg,
		log:     log.Named("worker"),
		clock:   clk,
		metrics: p.Metrics,
		sem:     semaphore.NewWeighted(cfg.Concurrency),
	}
}

// Submit runs fn in the background on behalf of the caller's tenant. The job
// gets its own snapshot of the tenant and outlives the caller's cancellation.
func (p *Pool) Submit(ctx context.Context, name string, fn JobFunc) (string, error) {
	return p.submit(tenantcontext.Detach(ctx), name, fn)
}

// SubmitIsolated runs fn in the background with no tenant bound. The job may
// Bind one itself.
func (p *Pool) SubmitIsolated(ctx context.Context, name string, fn JobFunc) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	return p.submit(tenantcontext.Isolate(context.WithoutCancel(ctx)), name, fn)
}

func (p *Pool) submit(ctx context.Context, name string, fn JobFunc) (string, error) {
	if fn == nil {
		return "", fmt.Errorf("%s: nil job", name)
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	jobID := correlation.NewID(p.clock.Now())
	ctx = obscontext.WithJob(ctx, name, jobID)

	p.metrics.SetQueued(p.queued.Add(1))
	go func() {
		defer p.wg.Done()

		// Acquire only fails on context cancellation; queued jobs always drain.
		_ = p.sem.Acquire(context.Background(), 1)
		defer p.sem.Release(1)
		p.metrics.SetQueued(p.queued.Add(-1))

		p.metrics.SetActive(p.active.Add(1))
		defer func() { p.metrics.SetActive(p.active.Add(-1)) }()

		p.runJob(ctx, name, fn)
	}()

	return jobID, nil
}

func (p *Pool) runJob(parent context.Context, name string, fn JobFunc) {
	start := p.clock.Now()
	ctx, cancel := context.WithTimeout(parent, p.cfg.JobTimeout)
	defer cancel()

	log := logger.WithContext(ctx, p.log)
	p.metrics.IncJobRun(name)

	defer func() {
		if r := recover(); r != nil {
			p.metrics.IncJobPanic(name)
			log.Error("job panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()

	err := fn(ctx)
	p.metrics.ObserveJobDuration(name, p.clock.Now().Sub(start))
	if err == nil {
		log.Debug("job finished")
		return
	}

	p.metrics.IncJobError(name, err)
	if errors.Is(err, context.DeadlineExceeded) {
		p.metrics.IncJobTimeout(name)
		log.Warn("job timed out",
			zap.Duration("timeout", p.cfg.JobTimeout),
			zap.Error(err),
		)
		return
	}
	log.Error("job failed", zap.Error(err))
}

// Stop refuses new jobs and waits for queued and running jobs until ctx ends.
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		p.log.Warn("worker pool stopped with jobs in flight",
			zap.Int64("active", p.active.Load()),
			zap.Int64("queued", p.queued.Load()),
		)
		return ctx.Err()
	}
}

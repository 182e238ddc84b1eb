package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	tally "github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const _configKey = "executor"

// Module provides a module to inject using fx.
var Module = fx.Provide(New)

// Params are inbound parameters to initialize the executor.
type Params struct {
	fx.In

	Config    config.Provider
	Lifecycle fx.Lifecycle
	Logger    *zap.SugaredLogger
	Stats     tally.Scope
}

// Config holds the pool settings read from the "executor" section.
type Config struct {
	Concurrency int `yaml:"concurrency"`
}

// TaskFunc is a unit of work run on the pool.
type TaskFunc func(ctx context.Context)

// Executor runs cancellable tasks on a bounded pool of goroutines.
type Executor interface {
	// Go schedules fn without blocking the caller.
	// fn runs exactly once; if ctx ends before a slot frees up, it runs with the ended context so it can release its own state.
	Go(ctx context.Context, name string, fn TaskFunc)
	// Wait blocks until every scheduled task has returned.
	Wait()
}

// executorImp implements Executor
type executorImp struct {
	logger *zap.SugaredLogger
	stats  tally.Scope
	slots  *semaphore.Weighted
	wg     sync.WaitGroup

	// base is cancelled when the pool stops; every task context is derived from it as well.
	base   context.Context
	cancel context.CancelFunc
}

// Option defines options to customize executorImp's behavior
type Option func(*options)

type options struct {
	logger      *zap.SugaredLogger
	stats       tally.Scope
	concurrency int
}

// WithLogger overrides the default noop logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithScope overrides the default noop metrics scope
func WithScope(scope tally.Scope) Option {
	return func(o *options) {
		o.stats = scope
	}
}

// WithConcurrency sets the maximum number of tasks running at once.
func WithConcurrency(n int) Option {
	return func(o *options) {
		o.concurrency = n
	}
}

// New creates an executor from config and stops it with the application.
func New(p Params) (Executor, error) {
	cfg := Config{}
	if err := p.Config.Get(_configKey).Populate(&cfg); err != nil {
		return nil, fmt.Errorf("getting executor configuration: %w", err)
	}

	e := NewExecutor(WithLogger(p.Logger), WithScope(p.Stats.SubScope("executor")), WithConcurrency(cfg.Concurrency))
	p.Lifecycle.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return e.stop(ctx)
		},
	})
	return e, nil
}

// NewExecutor creates a pool with the given options. Concurrency defaults to the number of CPUs.
func NewExecutor(opts ...Option) *executorImp {
	o := options{
		logger: zap.NewNop().Sugar(),
		stats:  tally.NoopScope,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.concurrency <= 0 {
		o.concurrency = runtime.NumCPU()
	}

	base, cancel := context.WithCancel(context.Background())
	return &executorImp{
		logger: o.logger,
		stats:  o.stats,
		slots:  semaphore.NewWeighted(int64(o.concurrency)),
		base:   base,
		cancel: cancel,
	}
}

// Go schedules fn on the pool.
func (e *executorImp) Go(ctx context.Context, name string, fn TaskFunc) {
	e.wg.Add(1)
	e.stats.Counter("scheduled").Inc(1)

	taskCtx, cancel := context.WithCancel(ctx)
	stopOnShutdown := context.AfterFunc(e.base, cancel)

	go func() {
		defer e.wg.Done()
		defer cancel()
		defer stopOnShutdown()

		if err := e.slots.Acquire(taskCtx, 1); err != nil {
			e.stats.Counter("abandoned").Inc(1)
			e.logger.Debugw("task abandoned before start", "task", name, "error", err)
			fn(taskCtx)
			return
		}
		defer e.slots.Release(1)

		e.logger.Debugw("task started", "task", name)
		fn(taskCtx)
		e.stats.Counter("completed").Inc(1)
	}()
}

// Wait blocks until every scheduled task has returned.
func (e *executorImp) Wait() {
	e.wg.Wait()
}

func (e *executorImp) stop(ctx context.Context) error {
	e.cancel()
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for running tasks: %w", ctx.Err())
	}
}

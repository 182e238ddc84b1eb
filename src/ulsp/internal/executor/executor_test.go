package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tally "github.com/uber-go/tally"
	"go.uber.org/config"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNew(t *testing.T) {
	var e Executor
	cfg, err := config.NewStaticProvider(map[string]interface{}{
		"executor": map[string]interface{}{"concurrency": 2},
	})
	require.NoError(t, err)

	app := fxtest.New(t,
		fx.Supply(fx.Annotate(cfg, fx.As(new(config.Provider)))),
		fx.Supply(zap.NewNop().Sugar()),
		fx.Supply(fx.Annotate(tally.NewTestScope("", nil), fx.As(new(tally.Scope)))),
		Module,
		fx.Populate(&e),
	)
	app.RequireStart()

	ran := make(chan struct{})
	e.Go(context.Background(), "test", func(ctx context.Context) {
		close(ran)
	})
	<-ran
	app.RequireStop()
}

func TestGoBoundsConcurrency(t *testing.T) {
	scope := tally.NewTestScope("", nil)
	e := NewExecutor(WithConcurrency(2), WithScope(scope), WithLogger(zap.NewNop().Sugar()))

	var running, peak int32
	release := make(chan struct{})
	for i := 0; i < 6; i++ {
		e.Go(context.Background(), "task", func(ctx context.Context) {
			n := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			<-release
			atomic.AddInt32(&running, -1)
		})
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	e.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, int64(6), scope.Snapshot().Counters()["completed+"].Value())
}

func TestGoRunsAbandonedTaskWithEndedContext(t *testing.T) {
	e := NewExecutor(WithConcurrency(1))

	block := make(chan struct{})
	started := make(chan struct{})
	e.Go(context.Background(), "blocker", func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	var got error
	var wg sync.WaitGroup
	wg.Add(1)
	e.Go(ctx, "waiting", func(ctx context.Context) {
		got = ctx.Err()
		wg.Done()
	})
	cancel()
	wg.Wait()
	close(block)
	e.Wait()

	assert.ErrorIs(t, got, context.Canceled)
}

func TestStopCancelsRunningTasks(t *testing.T) {
	e := NewExecutor(WithConcurrency(1))

	started := make(chan struct{})
	e.Go(context.Background(), "long", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started

	require.NoError(t, e.stop(context.Background()))
}

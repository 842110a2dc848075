package pool

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveConcurrency(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestSubmitBeforeStartFails(t *testing.T) {
	p, err := New(2)
	require.NoError(t, err)

	err = p.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolNotStarted)
}

func TestSubmitRunsEveryTask(t *testing.T) {
	p, err := New(4)
	require.NoError(t, err)
	p.Start()

	var count int64
	const n = 50
	for i := 0; i < n; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			atomic.AddInt64(&count, 1)
		}))
	}

	require.NoError(t, p.AwaitAll(context.Background()))
	assert.EqualValues(t, n, atomic.LoadInt64(&count))

	p.Shutdown()
}

func TestSubmitAfterShutdownFails(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	p.Start()
	p.Shutdown()

	err = p.Submit(func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestAwaitAllTimeoutCancelsRunningTasks(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	p.Start()
	defer p.Shutdown()

	cancelled := make(chan struct{}, 1)
	require.NoError(t, p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		cancelled <- struct{}{}
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = p.AwaitAll(ctx)
	assert.Error(t, err)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task never observed cancellation")
	}
}

func TestAwaitAllSurvivesPriorTimeoutForLaterRound(t *testing.T) {
	p, err := New(1)
	require.NoError(t, err)
	p.Start()
	defer p.Shutdown()

	timeoutCtx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	require.NoError(t, p.Submit(func(ctx context.Context) { <-ctx.Done() }))
	_ = p.AwaitAll(timeoutCtx)

	var ran int32
	require.NoError(t, p.Submit(func(ctx context.Context) { atomic.StoreInt32(&ran, 1) }))
	require.NoError(t, p.AwaitAll(context.Background()))
	assert.EqualValues(t, 1, atomic.LoadInt32(&ran))
}

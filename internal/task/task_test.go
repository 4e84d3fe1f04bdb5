package task

import (
	"errors"
	"testing"
	"time"

	"github.com/smilemakc/dagengine/internal/apperr"
	"github.com/smilemakc/dagengine/internal/eventloop"
	"github.com/smilemakc/dagengine/internal/workerpool"
	"github.com/stretchr/testify/require"
)

func newLoop(t *testing.T) *eventloop.Loop {
	t.Helper()
	l := eventloop.New(16)
	require.True(t, l.Start())
	t.Cleanup(l.Stop)
	return l
}

func TestSleep_ZeroDurationShortCircuits(t *testing.T) {
	loop := newLoop(t)
	start := time.Now()
	res := <-Sleep(loop, 0)
	require.NoError(t, res.Err)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestSleep_WaitsApproximatelyD(t *testing.T) {
	loop := newLoop(t)
	start := time.Now()
	res := <-Sleep(loop, 30*time.Millisecond)
	require.NoError(t, res.Err)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestOffload_ReturnsComputedValue(t *testing.T) {
	loop := newLoop(t)
	pool := workerpool.New(2)
	defer pool.Close()

	res := <-Offload(pool, loop, func() (int, error) { return 42, nil })
	require.NoError(t, res.Err)
	require.Equal(t, 42, res.Value)
}

func TestOffload_PropagatesError(t *testing.T) {
	loop := newLoop(t)
	pool := workerpool.New(2)
	defer pool.Close()

	wantErr := errors.New("boom")
	res := <-Offload(pool, loop, func() (int, error) { return 0, wantErr })
	require.ErrorIs(t, res.Err, wantErr)
}

func TestOffloadTimeout_WorkerWinsWhenFast(t *testing.T) {
	loop := newLoop(t)
	pool := workerpool.New(2)
	defer pool.Close()

	res := <-OffloadTimeout(pool, loop, time.Now().Add(time.Second), func() (int, error) {
		return 7, nil
	})
	require.NoError(t, res.Err)
	require.Equal(t, 7, res.Value)
}

func TestOffloadTimeout_TimerWinsWhenSlow(t *testing.T) {
	loop := newLoop(t)
	pool := workerpool.New(2)
	defer pool.Close()

	before := LateCompletions.Load()
	res := <-OffloadTimeout(pool, loop, time.Now().Add(20*time.Millisecond), func() (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 99, nil
	})
	require.Error(t, res.Err)

	var appErr *apperr.Error
	require.True(t, errors.As(res.Err, &appErr))
	require.Equal(t, apperr.KindTimeout, appErr.Kind)

	// Give the late worker completion time to land and increment the
	// counter before asserting on it.
	require.Eventually(t, func() bool {
		return LateCompletions.Load() > before
	}, 500*time.Millisecond, 10*time.Millisecond)
}

func TestOffloadTimeout_AlreadyPastDeadline(t *testing.T) {
	loop := newLoop(t)
	pool := workerpool.New(2)
	defer pool.Close()

	res := <-OffloadTimeout(pool, loop, time.Now().Add(-time.Second), func() (int, error) {
		return 1, nil
	})
	require.Error(t, res.Err)
}

func TestAsyncTimeout_InnerWinsWhenFast(t *testing.T) {
	loop := newLoop(t)
	inner := make(chan Result[string], 1)
	inner <- Result[string]{Value: "ok"}

	res := <-AsyncTimeout(loop, time.Now().Add(time.Second), inner)
	require.NoError(t, res.Err)
	require.Equal(t, "ok", res.Value)
}

func TestAsyncTimeout_DeadlineWinsWhenSlow(t *testing.T) {
	loop := newLoop(t)
	inner := make(chan Result[string], 1)
	go func() {
		time.Sleep(200 * time.Millisecond)
		inner <- Result[string]{Value: "too-late"}
	}()

	res := <-AsyncTimeout(loop, time.Now().Add(20*time.Millisecond), inner)
	require.Error(t, res.Err)
}

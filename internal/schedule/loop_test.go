package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cdc-cli/internal/resilience"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func start(t *testing.T, l *Loop) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func wait(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
		return nil
	}
}

func TestLoop_RunsEachInterval(t *testing.T) {
	clk := testclock.NewClock(epoch)
	var n atomic.Int32
	cancel, done := start(t, &Loop{
		Name:     "test",
		Interval: 10 * time.Second,
		Clock:    clk,
		Task: func(context.Context) error {
			n.Add(1)
			return nil
		},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, clk.WaitAdvance(10*time.Second, time.Second, 1))
	}
	cancel()
	require.NoError(t, wait(t, done))
	assert.GreaterOrEqual(t, n.Load(), int32(3))
}

func TestLoop_TransientErrorsContinue(t *testing.T) {
	clk := testclock.NewClock(epoch)
	var n atomic.Int32
	cancel, done := start(t, &Loop{
		Interval: time.Second,
		Clock:    clk,
		Task: func(context.Context) error {
			if n.Add(1) == 1 {
				return resilience.NewTransientError(errors.New("connection refused"))
			}
			return nil
		},
	})

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	cancel()
	require.NoError(t, wait(t, done))
	assert.GreaterOrEqual(t, n.Load(), int32(2))
}

func TestLoop_FatalErrorStops(t *testing.T) {
	fatal := errors.New("bad config")
	_, done := start(t, &Loop{
		Interval: time.Second,
		Clock:    testclock.NewClock(epoch),
		Task:     func(context.Context) error { return fatal },
	})
	assert.ErrorIs(t, wait(t, done), fatal)
}

func TestLoop_GivesUpAfterConsecutiveFailures(t *testing.T) {
	clk := testclock.NewClock(epoch)
	boom := resilience.NewTransientError(errors.New("timeout"))
	_, done := start(t, &Loop{
		Interval:               time.Second,
		Clock:                  clk,
		MaxConsecutiveFailures: 2,
		Task:                   func(context.Context) error { return boom },
	})

	require.NoError(t, clk.WaitAdvance(time.Second, time.Second, 1))
	assert.ErrorIs(t, wait(t, done), boom)
}

func TestLoop_CancelledDuringIterationFinishesIt(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	cancel, done := start(t, &Loop{
		Interval: time.Hour,
		Clock:    testclock.NewClock(epoch),
		Task: func(context.Context) error {
			close(started)
			<-release
			finished.Store(true)
			return nil
		},
	})

	<-started
	cancel()
	close(release)
	require.NoError(t, wait(t, done))
	assert.True(t, finished.Load())
}

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(3), func(_ context.Context) error {
		calls++
		return NewTransientError(errors.New("always fails"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "always fails")
	assert.Contains(t, err.Error(), "gave up after 3 attempts")
	assert.True(t, IsTransient(err))
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), fastRetry(5), func(_ context.Context) error {
		calls++
		return errors.New("constraint violated")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, fastRetry(10), func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("fail"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_UsesInjectedClock(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	cfg := RetryConfig{
		MaxAttempts:    2,
		InitialBackoff: time.Minute,
		MaxBackoff:     time.Minute,
		Clock:          clk,
	}

	var calls int
	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), cfg, func(_ context.Context) error {
			calls++
			if calls == 1 {
				return NewTransientError(errors.New("blip"))
			}
			return nil
		})
	}()

	// The retry only proceeds once the fake clock passes the backoff.
	require.NoError(t, clk.WaitAdvance(time.Minute, time.Second, 1))
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("retry did not resume after clock advance")
	}
	assert.Equal(t, 2, calls)
}

func TestDo_CustomShouldRetry(t *testing.T) {
	var calls int
	cfg := fastRetry(3)
	cfg.ShouldRetry = func(err error) bool { return err.Error() == "retry me" }

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return errors.New("retry me")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_OnRetryCallback(t *testing.T) {
	var attempts []int
	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ error) { attempts = append(attempts, attempt) }

	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("fail"))
	})
	assert.Equal(t, []int{1, 2}, attempts)
}

func TestDoVal_ReturnsValueOnSuccess(t *testing.T) {
	var calls int
	val, err := DoVal(context.Background(), fastRetry(3), func(_ context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", NewTransientError(errors.New("temporary"))
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", val)
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	val, err := DoVal(context.Background(), fastRetry(2), func(_ context.Context) (int, error) {
		return 42, errors.New("permanent")
	})
	require.Error(t, err)
	assert.Zero(t, val)
}

func TestBackoff_ExponentialGrowth(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Minute, Multiplier: 2.0}
	assert.Equal(t, 100*time.Millisecond, cfg.backoff(1, 0))
	assert.Equal(t, 200*time.Millisecond, cfg.backoff(2, 0))
	assert.Equal(t, 400*time.Millisecond, cfg.backoff(3, 0))
}

func TestBackoff_CapsAtMax(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: 5 * time.Second, Multiplier: 10}
	assert.Equal(t, 5*time.Second, cfg.backoff(4, 0))
}

func TestBackoff_JitterBounds(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: time.Second, MaxBackoff: time.Minute, Multiplier: 2, JitterFraction: 0.25}
	assert.Equal(t, 750*time.Millisecond, cfg.backoff(1, -1))
	assert.Equal(t, 1250*time.Millisecond, cfg.backoff(1, 1))
	assert.Equal(t, time.Second, cfg.backoff(1, 0))
}

func TestFromRetryConfig(t *testing.T) {
	cfg := FromRetryConfig(7, 250, 9000, 3, 0)
	assert.Equal(t, 7, cfg.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.InitialBackoff)
	assert.Equal(t, 9*time.Second, cfg.MaxBackoff)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.Equal(t, 0.0, cfg.JitterFraction)

	def := FromRetryConfig(0, 0, 0, 0, -1)
	assert.Equal(t, DefaultRetryConfig().MaxAttempts, def.MaxAttempts)
	assert.Equal(t, DefaultRetryConfig().JitterFraction, def.JitterFraction)
}

func TestDo_DefaultOnRetryLogs(t *testing.T) {
	cfg := applyDefaults(RetryConfig{Name: "db connect"})
	require.NotNil(t, cfg.OnRetry)
	require.NotNil(t, cfg.ShouldRetry)
	assert.NotPanics(t, func() { cfg.OnRetry(1, errors.New("boom")) })
}

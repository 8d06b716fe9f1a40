package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/juju/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RetryConfig controls retry behavior with exponential backoff and jitter.
type RetryConfig struct {
	// Name labels log lines and the give-up error.
	Name string

	// MaxAttempts is the total number of attempts (including the first try).
	// A value of 1 means no retries. Default: 5.
	MaxAttempts int

	// InitialBackoff is the base delay before the first retry. Default: 1s.
	InitialBackoff time.Duration

	// MaxBackoff caps the backoff duration. Default: 30s.
	MaxBackoff time.Duration

	// Multiplier scales the backoff after each attempt. Default: 2.0.
	Multiplier float64

	// JitterFraction adds random jitter as a fraction of the computed delay
	// (0.0 = no jitter, 0.5 = ±50%). Default: 0.25.
	JitterFraction float64

	// ShouldRetry optionally overrides the default transient-error check.
	// If nil, IsTransient is used.
	ShouldRetry func(err error) bool

	// OnRetry is called before each retry sleep with attempt number and
	// error. If nil, the retry is logged at warn level.
	OnRetry func(attempt int, err error)

	// Clock drives the backoff sleeps. Defaults to the wall clock.
	Clock clock.Clock
}

// DefaultRetryConfig returns the retry policy used for database connects
// and transient source or warehouse failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    5,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.25,
	}
}

// Do runs fn until it succeeds, returns an error ShouldRetry rejects, the
// context ends, or MaxAttempts is used up.
func Do(ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) error) error {
	_, err := DoVal(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoVal is Do for functions that return a value.
func DoVal[T any](ctx context.Context, cfg RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	cfg = applyDefaults(cfg)

	var zero T
	for attempt := 1; ; attempt++ {
		val, err := fn(ctx)
		if err == nil {
			return val, nil
		}
		if ctx.Err() != nil || !cfg.ShouldRetry(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts {
			return zero, eris.Wrapf(err, "resilience: %s gave up after %d attempts", cfg.Name, attempt)
		}

		cfg.OnRetry(attempt, err)

		select {
		case <-ctx.Done():
			return zero, err
		case <-cfg.Clock.After(cfg.backoff(attempt, rand.Float64()*2-1)):
		}
	}
}

// FromRetryConfig builds a RetryConfig from loaded settings, keeping
// defaults for values that are unset.
func FromRetryConfig(maxAttempts, initialBackoffMs, maxBackoffMs int, multiplier, jitterFraction float64) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	if multiplier > 0 {
		cfg.Multiplier = multiplier
	}
	if jitterFraction >= 0 {
		cfg.JitterFraction = jitterFraction
	}
	return cfg
}

func applyDefaults(cfg RetryConfig) RetryConfig {
	def := DefaultRetryConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = def.Multiplier
	}
	if cfg.JitterFraction < 0 {
		cfg.JitterFraction = 0
	}
	if cfg.Name == "" {
		cfg.Name = "operation"
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = IsTransient
	}
	if cfg.OnRetry == nil {
		name := cfg.Name
		cfg.OnRetry = func(attempt int, err error) {
			zap.L().Warn("retrying after transient error",
				zap.String("operation", name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return cfg
}

// backoff is the sleep after the given failed attempt (1-based). jitter is
// in [-1, 1] and scales JitterFraction.
func (c RetryConfig) backoff(attempt int, jitter float64) time.Duration {
	delay := float64(c.InitialBackoff) * math.Pow(c.Multiplier, float64(attempt-1))
	delay = math.Min(delay, float64(c.MaxBackoff))
	delay += delay * c.JitterFraction * jitter
	return time.Duration(math.Max(delay, 0))
}

// Package resilience provides circuit breaker and retry patterns for calls
// against the source and warehouse databases.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/juju/clock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState is the position of a breaker. The numeric values are what
// the metrics gauge reports.
type CircuitState int

const (
	CircuitClosed   CircuitState = 0
	CircuitHalfOpen CircuitState = 1
	CircuitOpen     CircuitState = 2
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected because the circuit is open.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// StateObserver is told about every state change of a named breaker.
// *metrics.Metrics satisfies it.
type StateObserver interface {
	CircuitStateChanged(name string, from, to CircuitState)
}

// BreakerConfig controls a Breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures that
	// open the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before a trial call
	// is let through. Default: 60s.
	ResetTimeout time.Duration

	// Trials is the number of successful half-open calls needed to close
	// the circuit again. Default: 1.
	Trials int

	// Trips decides which errors count toward the threshold. Defaults to
	// IsTransient, so constraint violations and bad SQL never open the
	// circuit.
	Trips func(err error) bool

	// Observer is optional.
	Observer StateObserver

	// Clock defaults to the wall clock.
	Clock clock.Clock
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		ResetTimeout:     60 * time.Second,
		Trials:           1,
	}
}

// FromCircuitConfig builds a BreakerConfig from loaded settings. Zero
// values keep the defaults.
func FromCircuitConfig(failureThreshold, resetTimeoutSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if resetTimeoutSecs > 0 {
		cfg.ResetTimeout = time.Duration(resetTimeoutSecs) * time.Second
	}
	return cfg
}

// Breaker guards one database dependency. A nil *Breaker passes every call
// straight through.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu       sync.Mutex
	state    CircuitState
	failures int
	trials   int
	openedAt time.Time
}

// NewBreaker returns a closed breaker called name.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	def := DefaultBreakerConfig()
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = def.ResetTimeout
	}
	if cfg.Trials <= 0 {
		cfg.Trials = def.Trials
	}
	if cfg.Trips == nil {
		cfg.Trips = IsTransient
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Breaker{name: name, cfg: cfg}
}

// Name identifies the breaker in logs and metrics.
func (b *Breaker) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// State reports the current state, moving an expired open circuit to
// half-open first.
func (b *Breaker) State() CircuitState {
	if b == nil {
		return CircuitClosed
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	return b.state
}

// Failures returns the consecutive tripping failures seen while closed.
func (b *Breaker) Failures() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset closes the circuit and clears its counters.
func (b *Breaker) Reset() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures, b.trials = 0, 0
	b.setState(CircuitClosed)
}

// Do runs fn unless the circuit is open.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Call(ctx, b, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Call runs fn through b and returns its value. An open circuit returns
// ErrCircuitOpen without calling fn.
func Call[T any](ctx context.Context, b *Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	if b == nil {
		return fn(ctx)
	}
	var zero T
	if err := b.admit(); err != nil {
		return zero, err
	}
	val, err := fn(ctx)
	b.record(err)
	if err != nil {
		return zero, err
	}
	return val, nil
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expire()
	if b.state == CircuitOpen {
		return eris.Wrapf(ErrCircuitOpen, "resilience: %s", b.name)
	}
	return nil
}

func (b *Breaker) record(err error) {
	// A cancelled caller says nothing about the database.
	if errors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.cfg.Trips(err) {
		switch b.state {
		case CircuitHalfOpen:
			b.trials = 0
			b.open()
		case CircuitClosed:
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.open()
			}
		}
		return
	}

	// Success, or an error the database answered with.
	switch b.state {
	case CircuitHalfOpen:
		b.trials++
		if b.trials >= b.cfg.Trials {
			b.failures, b.trials = 0, 0
			b.setState(CircuitClosed)
		}
	case CircuitClosed:
		b.failures = 0
	}
}

func (b *Breaker) open() {
	b.openedAt = b.cfg.Clock.Now()
	b.setState(CircuitOpen)
}

// expire must be called with mu held.
func (b *Breaker) expire() {
	if b.state == CircuitOpen && b.cfg.Clock.Now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.trials = 0
		b.setState(CircuitHalfOpen)
	}
}

// setState must be called with mu held.
func (b *Breaker) setState(to CircuitState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to

	zap.L().Warn("circuit breaker state changed",
		zap.String("breaker", b.name),
		zap.String("from", from.String()),
		zap.String("to", to.String()),
	)
	if b.cfg.Observer != nil {
		b.cfg.Observer.CircuitStateChanged(b.name, from, to)
	}
}

// Package schedule runs a task periodically without overlap: the next
// iteration starts one interval after the previous one has finished.
package schedule

import (
	"context"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/resilience"
)

// Task is one iteration of a loop.
type Task func(ctx context.Context) error

// Loop runs Task every Interval until its context is cancelled.
type Loop struct {
	Name     string
	Interval time.Duration
	Task     Task
	Clock    clock.Clock
	// MaxConsecutiveFailures stops the loop after this many transient
	// failures in a row. 0 means never.
	MaxConsecutiveFailures int
}

// Run blocks until ctx is cancelled or the task fails with a
// non-transient error. Cancellation is checked only between iterations, so
// an iteration in progress always completes. A cancelled loop returns nil.
func (l *Loop) Run(ctx context.Context) error {
	clk := l.Clock
	if clk == nil {
		clk = clock.WallClock
	}
	log := zap.L().With(zap.String("component", "schedule"), zap.String("loop", l.Name))
	log.Info("schedule: loop started", zap.Duration("interval", l.Interval))

	failures := 0
	for {
		if ctx.Err() != nil {
			log.Info("schedule: loop stopped")
			return nil
		}

		err := l.Task(ctx)
		switch {
		case err == nil:
			failures = 0
		case ctx.Err() != nil:
			log.Info("schedule: loop stopped during iteration", zap.Error(err))
			return nil
		case resilience.IsTransient(err):
			failures++
			log.Warn("schedule: iteration failed, will retry", zap.Int("consecutive_failures", failures), zap.Error(err))
			if l.MaxConsecutiveFailures > 0 && failures >= l.MaxConsecutiveFailures {
				return err
			}
		default:
			log.Error("schedule: iteration failed", zap.Error(err))
			return err
		}

		select {
		case <-ctx.Done():
			log.Info("schedule: loop stopped")
			return nil
		case <-clk.After(l.Interval):
		}
	}
}

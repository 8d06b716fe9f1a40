// Package cdc detects changes on the source by polling past a persisted
// watermark and writes each poll as a batch artifact.
package cdc

import (
	"strings"
	"sync"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/state"
)

// WatermarkKey is the state key of the extraction cursor.
const WatermarkKey = ".watermark"

// DefaultLookback bounds the first extraction when no cursor exists.
const DefaultLookback = 5 * time.Minute

// Watermark is the monotonic extraction cursor.
type Watermark struct {
	store    state.Store
	clock    clock.Clock
	lookback time.Duration
	log      *zap.Logger

	mu sync.Mutex
}

// NewWatermark returns a Watermark persisted in store. A nil clock means
// the wall clock; a non-positive lookback means DefaultLookback.
func NewWatermark(store state.Store, clk clock.Clock, lookback time.Duration) *Watermark {
	if clk == nil {
		clk = clock.WallClock
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Watermark{
		store:    store,
		clock:    clk,
		lookback: lookback,
		log:      zap.L().With(zap.String("component", "cdc.watermark")),
	}
}

// Get returns the persisted cursor, or now minus the lookback window when
// none is stored or it cannot be read.
func (w *Watermark) Get() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()

	if ts, ok := w.load(); ok {
		return ts
	}
	return model.Truncate(w.clock.Now().Add(-w.lookback))
}

// Stored returns the persisted cursor, if any.
func (w *Watermark) Stored() (time.Time, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load()
}

// Advance persists ts if it is after the stored cursor and reports whether
// the cursor moved. A write failure is logged and returned; the previous
// cursor remains valid.
func (w *Watermark) Advance(ts time.Time) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	ts = model.Truncate(ts)
	if ts.IsZero() {
		return false, nil
	}
	if cur, ok := w.load(); ok && !ts.After(cur) {
		return false, nil
	}

	if err := w.store.Set(WatermarkKey, []byte(ts.Format(time.RFC3339Nano)+"\n")); err != nil {
		w.log.Warn("cdc: watermark write failed, changes after the old cursor will be re-read",
			zap.Time("watermark", ts), zap.Error(err))
		return false, err
	}
	return true, nil
}

func (w *Watermark) load() (time.Time, bool) {
	data, ok, err := w.store.Get(WatermarkKey)
	if err != nil {
		w.log.Warn("cdc: watermark unreadable, using lookback default", zap.Error(err))
		return time.Time{}, false
	}
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
	if err != nil {
		w.log.Warn("cdc: watermark malformed, using lookback default",
			zap.String("value", string(data)), zap.Error(err))
		return time.Time{}, false
	}
	return model.Truncate(ts), true
}

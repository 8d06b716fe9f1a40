package cdc

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/juju/clock"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/resilience"
	"github.com/sells-group/cdc-cli/internal/source"
)

// ChangeSource reads source rows changed after a cursor in one snapshot.
type ChangeSource interface {
	Changes(ctx context.Context, since time.Time) (*source.Snapshot, error)
}

// Detection is the result of one poll.
type Detection struct {
	Records    []model.ChangeRecord
	CapturedAt time.Time
}

// Detector turns source snapshots into classified change records.
type Detector struct {
	src     ChangeSource
	clock   clock.Clock
	breaker *resilience.Breaker
}

// NewDetector returns a Detector. breaker may be nil.
func NewDetector(src ChangeSource, clk clock.Clock, breaker *resilience.Breaker) *Detector {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Detector{src: src, clock: clk, breaker: breaker}
}

// Detect returns every change after since, ordered by source modification
// time then natural key. A row created after since is an INSERT, any other
// changed row an UPDATE, and an audited deletion a DELETE. All records share
// one capture timestamp taken from the detector's clock. Connectivity
// failures are returned as *resilience.TransientError.
func (d *Detector) Detect(ctx context.Context, since time.Time) (*Detection, error) {
	snap, err := d.snapshot(ctx, since)
	if err != nil {
		if resilience.IsTransient(err) || errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, resilience.NewTransientError(eris.Wrap(err, "cdc: detect"))
		}
		return nil, eris.Wrap(err, "cdc: detect")
	}

	captured := model.Truncate(d.clock.Now())
	records := make([]model.ChangeRecord, 0, len(snap.Rows)+len(snap.Deleted))
	for _, r := range snap.Rows {
		op := model.OpUpdate
		if r.CreatedAt.After(since) {
			op = model.OpInsert
		}
		rec := model.ChangeRecord{
			NaturalKey:       r.ID,
			Attributes:       r.Attributes,
			LastUpdated:      r.LastUpdated,
			CreatedAt:        r.CreatedAt,
			Operation:        op,
			CaptureTimestamp: captured,
			ExtractedAt:      captured,
		}
		rec.Normalize()
		records = append(records, rec)
	}
	for _, r := range snap.Deleted {
		rec := model.ChangeRecord{
			NaturalKey:       r.ID,
			Attributes:       r.Attributes,
			LastUpdated:      r.DeletedAt,
			Operation:        model.OpDelete,
			CaptureTimestamp: captured,
			ExtractedAt:      captured,
		}
		rec.Normalize()
		records = append(records, rec)
	}

	sort.SliceStable(records, func(i, j int) bool {
		mi, mj := records[i].SourceModified(), records[j].SourceModified()
		if !mi.Equal(mj) {
			return mi.Before(mj)
		}
		return records[i].NaturalKey < records[j].NaturalKey
	})
	return &Detection{Records: records, CapturedAt: captured}, nil
}

func (d *Detector) snapshot(ctx context.Context, since time.Time) (*source.Snapshot, error) {
	return resilience.Call(ctx, d.breaker, func(ctx context.Context) (*source.Snapshot, error) {
		return d.src.Changes(ctx, since)
	})
}

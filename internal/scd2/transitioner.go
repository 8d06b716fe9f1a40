package scd2

import (
	"context"
	"time"

	"github.com/im7mortal/kmutex"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/model"
)

// KeyTx is the view of a single natural key inside an exclusive
// transaction. Everything done through it commits or rolls back together.
type KeyTx interface {
	// Current returns the current version, or nil when the key is ABSENT.
	Current(ctx context.Context) (*model.Version, error)
	// ClosedUntil returns the latest valid_to among closed versions, or nil
	// when the key has no history.
	ClosedUntil(ctx context.Context) (*time.Time, error)
	// Close sets valid_to and clears is_current on a current version.
	Close(ctx context.Context, surrogateKey int64, validTo time.Time) error
	// Insert appends a new version and returns its surrogate key.
	Insert(ctx context.Context, v model.Version) (int64, error)
}

// Table is a temporal table that can serialize access per natural key.
// WithKey holds an exclusive lock on the key for the duration of fn and
// commits only if fn returns nil.
type Table interface {
	WithKey(ctx context.Context, naturalKey int64, fn func(ctx context.Context, tx KeyTx) error) error
}

// Outcome is what Apply did for one change.
type Outcome struct {
	Decision
	// SurrogateKey is set when a new version was inserted.
	SurrogateKey int64
}

// Transitioner applies effective changes to a Table.
type Transitioner struct {
	table Table
	locks *kmutex.Kmutex
}

// NewTransitioner returns a Transitioner over table.
func NewTransitioner(table Table) *Transitioner {
	return &Transitioner{table: table, locks: kmutex.New()}
}

// Apply runs one effective change through the transition table. Transitions
// for the same key are serialized in process and by the table's own lock;
// different keys may run concurrently. Any failure is returned as a
// *TransitionError and leaves the key unchanged.
func (t *Transitioner) Apply(ctx context.Context, change model.ChangeRecord, batchID string) (Outcome, error) {
	t.locks.Lock(change.NaturalKey)
	defer t.locks.Unlock(change.NaturalKey)

	var out Outcome
	err := t.table.WithKey(ctx, change.NaturalKey, func(ctx context.Context, tx KeyTx) error {
		current, err := tx.Current(ctx)
		if err != nil {
			return eris.Wrap(err, "load current version")
		}

		var closedUntil *time.Time
		if current == nil {
			if closedUntil, err = tx.ClosedUntil(ctx); err != nil {
				return eris.Wrap(err, "load closed history")
			}
		}

		out = Outcome{Decision: Decide(current, closedUntil, change)}

		switch out.Action {
		case ActionClose, ActionCloseAndInsert:
			if err := tx.Close(ctx, current.SurrogateKey, change.CaptureTimestamp); err != nil {
				return eris.Wrap(err, "close current version")
			}
		}

		switch out.Action {
		case ActionInsert, ActionCloseAndInsert:
			sk, err := tx.Insert(ctx, newVersion(change, out.Operation, batchID))
			if err != nil {
				return eris.Wrap(err, "insert version")
			}
			out.SurrogateKey = sk
		}
		return nil
	})
	if err != nil {
		return Outcome{}, &TransitionError{NaturalKey: change.NaturalKey, Operation: change.Operation, Err: err}
	}

	if out.Anomaly {
		zap.L().Warn("scd2: anomalous change absorbed",
			zap.Int64("natural_key", change.NaturalKey),
			zap.String("operation", string(change.Operation)),
			zap.String("reason", out.Reason),
			zap.String("batch", batchID),
		)
	}
	return out, nil
}

func newVersion(change model.ChangeRecord, op model.Operation, batchID string) model.Version {
	return model.Version{
		NaturalKey:       change.NaturalKey,
		Attributes:       change.Attributes,
		ValidFrom:        change.CaptureTimestamp,
		IsCurrent:        true,
		SourceOperation:  op,
		CaptureTimestamp: change.CaptureTimestamp,
		BatchID:          batchID,
	}
}

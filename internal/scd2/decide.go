// Package scd2 applies effective changes to the SCD Type 2 order dimension.
//
// Every natural key is either ABSENT (no current version) or CURRENT. Decide
// maps (state, operation) to an action, refusing changes that are not newer
// than the key's existing history; Transitioner executes that action
// under per-key mutual exclusion inside a single transaction.
package scd2

import (
	"time"

	"github.com/sells-group/cdc-cli/internal/model"
)

// Action is the storage effect of a transition.
type Action int

const (
	// ActionNone leaves the table untouched.
	ActionNone Action = iota
	// ActionInsert appends a new current version.
	ActionInsert
	// ActionCloseAndInsert closes the current version and appends its
	// successor in the same transaction.
	ActionCloseAndInsert
	// ActionClose closes the current version with no successor.
	ActionClose
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionInsert:
		return "insert"
	case ActionCloseAndInsert:
		return "close_and_insert"
	case ActionClose:
		return "close"
	default:
		return "unknown"
	}
}

// Reasons attached to a Decision.
const (
	ReasonNew              = "new key"
	ReasonUpdateNoPrior    = "update with no prior version"
	ReasonDeleteAbsent     = "delete of absent key"
	ReasonDuplicateInsert  = "duplicate insert"
	ReasonInsertOnExisting = "insert on existing key"
	ReasonUnchanged        = "attributes unchanged"
	ReasonChanged          = "attributes changed"
	ReasonDeleted          = "deleted"
	ReasonStale            = "capture timestamp not after current valid_from"
	ReasonStaleClosed      = "capture timestamp not after closed history"
)

// Decision is the outcome of the transition table for one change.
type Decision struct {
	Action Action
	// Operation is recorded as the new version's source operation. It is
	// only meaningful for ActionInsert and ActionCloseAndInsert.
	Operation model.Operation
	Reason    string
	// Anomaly marks irregular input that was absorbed rather than rejected.
	Anomaly bool
}

// Decide evaluates the transition table. current is nil when the key is
// ABSENT. closedUntil is the latest valid_to among the key's closed versions,
// nil when it has none; an ABSENT key is only recreated by a change captured
// after it.
func Decide(current *model.Version, closedUntil *time.Time, change model.ChangeRecord) Decision {
	if current == nil {
		if change.Operation != model.OpDelete && closedUntil != nil && !change.CaptureTimestamp.After(*closedUntil) {
			return Decision{Action: ActionNone, Reason: ReasonStaleClosed, Anomaly: true}
		}
		switch change.Operation {
		case model.OpInsert:
			return Decision{Action: ActionInsert, Operation: model.OpInsert, Reason: ReasonNew}
		case model.OpUpdate:
			return Decision{Action: ActionInsert, Operation: model.OpInsert, Reason: ReasonUpdateNoPrior, Anomaly: true}
		default:
			return Decision{Action: ActionNone, Reason: ReasonDeleteAbsent}
		}
	}

	op := change.Operation
	reason := ReasonChanged
	anomaly := false
	if op == model.OpInsert {
		if current.SourceOperation == model.OpInsert && current.CaptureTimestamp.Equal(change.CaptureTimestamp) {
			return Decision{Action: ActionNone, Reason: ReasonDuplicateInsert}
		}
		op = model.OpUpdate
		reason = ReasonInsertOnExisting
		anomaly = true
	}

	// A close at or before valid_from would produce an empty or inverted
	// interval.
	stale := !change.CaptureTimestamp.After(current.ValidFrom)

	switch op {
	case model.OpUpdate:
		if current.Attributes.Equal(change.Attributes) {
			return Decision{Action: ActionNone, Reason: ReasonUnchanged}
		}
		if stale {
			return Decision{Action: ActionNone, Reason: ReasonStale, Anomaly: true}
		}
		return Decision{Action: ActionCloseAndInsert, Operation: model.OpUpdate, Reason: reason, Anomaly: anomaly}
	default:
		if stale {
			return Decision{Action: ActionNone, Reason: ReasonStale, Anomaly: true}
		}
		return Decision{Action: ActionClose, Reason: ReasonDeleted}
	}
}

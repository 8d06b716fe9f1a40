package loader

import (
	"time"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
)

// Result summarises one load cycle.
type Result struct {
	Artifacts  int
	Applied    int
	Skipped    int
	Corrupt    int
	Unreadable int
	Retried    int

	Records          int
	Coalesced        int
	ValidationFailed int
	TransitionFailed int

	Inserted  int
	Versioned int
	Closed    int
	Unchanged int
	Anomalies int

	Pruned    int
	Cancelled bool
	Duration  time.Duration
	Stats     *model.DimensionStats
}

// Failed is the number of records that could not be applied.
func (r *Result) Failed() int {
	return r.ValidationFailed + r.TransitionFailed
}

func (r *Result) count(out scd2.Outcome) {
	switch out.Action {
	case scd2.ActionInsert:
		r.Inserted++
	case scd2.ActionCloseAndInsert:
		r.Versioned++
	case scd2.ActionClose:
		r.Closed++
	default:
		r.Unchanged++
	}
	if out.Anomaly {
		r.Anomalies++
	}
}

// Status maps the cycle outcome onto a run log status. A cycle stopped by
// shutdown reports what it had finished.
func (r *Result) Status(err error) model.RunStatus {
	switch {
	case err != nil && !r.Cancelled:
		return model.RunStatusFailed
	case r.Failed() > 0 || r.Corrupt > 0 || r.Unreadable > 0 || r.Retried > 0:
		return model.RunStatusCompletedWithErrors
	default:
		return model.RunStatusCompleted
	}
}

// RunResult converts r for the run log.
func (r *Result) RunResult(err error) model.RunResult {
	failed := r.Failed()
	out := model.RunResult{
		Status:     r.Status(err),
		Processed:  r.Records,
		Successful: r.Records - failed,
		Failed:     failed,
		Metrics: map[string]any{
			"artifacts":   r.Artifacts,
			"applied":     r.Applied,
			"skipped":     r.Skipped,
			"corrupt":     r.Corrupt,
			"retried":     r.Retried,
			"coalesced":   r.Coalesced,
			"inserted":    r.Inserted,
			"versioned":   r.Versioned,
			"closed":      r.Closed,
			"unchanged":   r.Unchanged,
			"anomalies":   r.Anomalies,
			"pruned":      r.Pruned,
			"cancelled":   r.Cancelled,
			"duration_ms": r.Duration.Milliseconds(),
		},
	}
	if r.Stats != nil {
		out.Metrics["dimension"] = r.Stats
	}
	if err != nil {
		out.ErrorMessage = err.Error()
	}
	return out
}

package report

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/sells-group/cdc-cli/internal/model"
)

// WriteRuns writes a tabular list of runs.
func WriteRuns(out io.Writer, runs []model.PipelineRun) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tPIPELINE\tSTATUS\tPROCESSED\tFAILED\tSTARTED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t---------\t------\t-------\t--------")

	for _, r := range runs {
		dur := "-"
		if r.EndTime != nil {
			dur = r.EndTime.Sub(r.StartTime).Round(time.Millisecond).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			truncateID(r.RunID),
			r.Pipeline,
			r.Status,
			r.Processed,
			r.Failed,
			r.StartTime.Format("2006-01-02 15:04:05"),
			dur,
		)
	}
	_ = w.Flush()
}

// WriteRunStats writes aggregate stats for one pipeline.
func WriteRunStats(out io.Writer, pipeline string, s *model.RunStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Pipeline:\t%s\n", pipeline)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.TotalRuns)
	_, _ = fmt.Fprintf(w, "Successful:\t%d\n", s.SuccessfulRuns)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.FailedRuns)
	_, _ = fmt.Fprintf(w, "Records processed:\t%d\n", s.RecordsProcessed)
	_, _ = fmt.Fprintf(w, "Records failed:\t%d\n", s.RecordsFailed)
	if s.AvgDurationSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.2fs\n", s.AvgDurationSecs)
	}
	if s.LastRunTime != nil {
		_, _ = fmt.Fprintf(w, "Last run:\t%s\n", s.LastRunTime.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// WriteDimensionStats writes the dimension summary.
func WriteDimensionStats(out io.Writer, s *model.DimensionStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total versions:\t%d\n", s.TotalRecords)
	_, _ = fmt.Fprintf(w, "Current:\t%d\n", s.CurrentRecords)
	_, _ = fmt.Fprintf(w, "Historical:\t%d\n", s.HistoricalRecords)
	_, _ = fmt.Fprintf(w, "Unique keys:\t%d\n", s.UniqueKeys)
	if s.EarliestValidFrom != nil {
		_, _ = fmt.Fprintf(w, "Earliest valid_from:\t%s\n", s.EarliestValidFrom.Format(time.RFC3339))
	}
	if s.LatestValidFrom != nil {
		_, _ = fmt.Fprintf(w, "Latest valid_from:\t%s\n", s.LatestValidFrom.Format(time.RFC3339))
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package model

import "time"

// RunStatus is the state of a pipeline run as reported to the run log.
type RunStatus string

const (
	RunStatusRunning             RunStatus = "running"
	RunStatusCompleted           RunStatus = "completed"
	RunStatusCompletedWithErrors RunStatus = "completed_with_errors"
	RunStatusFailed              RunStatus = "failed"
)

// Terminal reports whether the status ends a run.
func (s RunStatus) Terminal() bool {
	return s != RunStatusRunning
}

// Pipeline names recorded in the run log.
const (
	PipelineExtractor = "cdc_extractor"
	PipelineLoader    = "scd2_loader"
)

// PipelineRun is one row of the pipeline run log.
type PipelineRun struct {
	ID           int64          `json:"id"`
	Pipeline     string         `json:"pipeline_name"`
	RunID        string         `json:"run_id"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      *time.Time     `json:"end_time,omitempty"`
	Status       RunStatus      `json:"status"`
	Processed    int            `json:"records_processed"`
	Successful   int            `json:"records_successful"`
	Failed       int            `json:"records_failed"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metrics      map[string]any `json:"performance_metrics,omitempty"`
}

// RunResult is what a finished run reports.
type RunResult struct {
	Status       RunStatus
	Processed    int
	Successful   int
	Failed       int
	ErrorMessage string
	Metrics      map[string]any
}

// RunStats aggregates runs of a pipeline over a window.
type RunStats struct {
	TotalRuns        int        `json:"total_runs"`
	SuccessfulRuns   int        `json:"successful_runs"`
	FailedRuns       int        `json:"failed_runs"`
	AvgDurationSecs  float64    `json:"avg_duration_seconds"`
	RecordsProcessed int64      `json:"total_records_processed"`
	RecordsFailed    int64      `json:"total_records_failed"`
	LastRunTime      *time.Time `json:"last_run_time,omitempty"`
}

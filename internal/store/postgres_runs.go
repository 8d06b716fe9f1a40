package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

// StartRun records a new running pipeline run.
func (s *PostgresStore) StartRun(ctx context.Context, pipeline string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		Pipeline:  pipeline,
		RunID:     uuid.New().String(),
		StartTime: time.Now().UTC(),
		Status:    model.RunStatusRunning,
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pipeline_metadata (pipeline_name, run_id, start_time, status)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		run.Pipeline, run.RunID, run.StartTime, string(run.Status),
	).Scan(&run.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: start run %s", pipeline)
	}
	return run, nil
}

// FinishRun records the outcome of a run. end_time is set for every
// terminal status.
func (s *PostgresStore) FinishRun(ctx context.Context, id int64, result model.RunResult) error {
	var metrics []byte
	if len(result.Metrics) > 0 {
		b, err := json.Marshal(result.Metrics)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal run metrics")
		}
		metrics = b
	}

	var endTime *time.Time
	if result.Status.Terminal() {
		now := time.Now().UTC()
		endTime = &now
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE pipeline_metadata
		 SET end_time = $1, status = $2, records_processed = $3, records_successful = $4,
		     records_failed = $5, error_message = $6, performance_metrics = $7
		 WHERE id = $8`,
		endTime, string(result.Status), result.Processed, result.Successful,
		result.Failed, nullString(result.ErrorMessage), metrics, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %d", id)
	}
	return nil
}

// LastRun returns the most recent run of pipeline, or nil if there is none.
func (s *PostgresStore) LastRun(ctx context.Context, pipeline string) (*model.PipelineRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM pipeline_metadata WHERE pipeline_name = $1 ORDER BY start_time DESC, id DESC LIMIT 1`,
		pipeline,
	)
	run, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: last run %s", pipeline)
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_metadata WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Pipeline != "" {
		query += fmt.Sprintf(` AND pipeline_name = $%d`, argIdx)
		args = append(args, filter.Pipeline)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY start_time DESC, id DESC LIMIT $%d`, argIdx)
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: iterate runs")
}

// RunStats aggregates runs of pipeline that started at or after since.
func (s *PostgresStore) RunStats(ctx context.Context, pipeline string, since time.Time) (*model.RunStats, error) {
	var st model.RunStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status IN ('completed', 'completed_with_errors')),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(AVG(EXTRACT(EPOCH FROM (end_time - start_time))), 0)::float8,
		       COALESCE(SUM(records_processed), 0)::bigint,
		       COALESCE(SUM(records_failed), 0)::bigint,
		       MAX(start_time)
		FROM pipeline_metadata
		WHERE pipeline_name = $1 AND start_time >= $2`,
		pipeline, since,
	).Scan(&st.TotalRuns, &st.SuccessfulRuns, &st.FailedRuns, &st.AvgDurationSecs,
		&st.RecordsProcessed, &st.RecordsFailed, &st.LastRunTime)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: run stats %s", pipeline)
	}
	return &st, nil
}

func scanPgRun(row pgx.Row) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status string
	var errMsg *string
	var metrics []byte
	err := row.Scan(&r.ID, &r.Pipeline, &r.RunID, &r.StartTime, &r.EndTime, &status,
		&r.Processed, &r.Successful, &r.Failed, &errMsg, &metrics)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	if errMsg != nil {
		r.ErrorMessage = *errMsg
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return nil, eris.Wrap(err, "unmarshal performance_metrics")
		}
	}
	return &r, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

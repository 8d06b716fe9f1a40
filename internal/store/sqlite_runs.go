package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

func (s *SQLiteStore) StartRun(ctx context.Context, pipeline string) (*model.PipelineRun, error) {
	run := &model.PipelineRun{
		Pipeline:  pipeline,
		RunID:     uuid.New().String(),
		StartTime: model.Truncate(time.Now()),
		Status:    model.RunStatusRunning,
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pipeline_metadata (pipeline_name, run_id, start_time, status) VALUES (?, ?, ?, ?)`,
		run.Pipeline, run.RunID, formatTime(run.StartTime), string(run.Status),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: start run %s", pipeline)
	}
	if run.ID, err = res.LastInsertId(); err != nil {
		return nil, eris.Wrap(err, "sqlite: last insert id")
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, id int64, result model.RunResult) error {
	var metrics sql.NullString
	if len(result.Metrics) > 0 {
		b, err := json.Marshal(result.Metrics)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal run metrics")
		}
		metrics = sql.NullString{String: string(b), Valid: true}
	}

	var endTime sql.NullString
	if result.Status.Terminal() {
		endTime = sql.NullString{String: formatTime(time.Now()), Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_metadata
		 SET end_time = ?, status = ?, records_processed = ?, records_successful = ?,
		     records_failed = ?, error_message = ?, performance_metrics = ?
		 WHERE id = ?`,
		endTime, string(result.Status), result.Processed, result.Successful,
		result.Failed, sql.NullString{String: result.ErrorMessage, Valid: result.ErrorMessage != ""}, metrics, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %d", id)
	}
	return checkRowsAffected(res, "run", id)
}

func (s *SQLiteStore) LastRun(ctx context.Context, pipeline string) (*model.PipelineRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_metadata WHERE pipeline_name = ? ORDER BY start_time DESC, id DESC LIMIT 1`,
		pipeline,
	)
	run, err := scanSQLiteRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: last run %s", pipeline)
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error) {
	query := `SELECT ` + runColumns + ` FROM pipeline_metadata WHERE 1=1`
	args := []any{}
	if filter.Pipeline != "" {
		query += ` AND pipeline_name = ?`
		args = append(args, filter.Pipeline)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY start_time DESC, id DESC LIMIT ?`
	args = append(args, defaultLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// RunStats aggregates in Go; SQLite has no interval arithmetic over the
// stored text timestamps.
func (s *SQLiteStore) RunStats(ctx context.Context, pipeline string, since time.Time) (*model.RunStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_metadata WHERE pipeline_name = ? AND start_time >= ?`,
		pipeline, formatTime(since),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: run stats %s", pipeline)
	}
	defer rows.Close()

	var runs []model.PipelineRun
	for rows.Next() {
		r, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate runs")
	}
	return aggregateRuns(runs), nil
}

func aggregateRuns(runs []model.PipelineRun) *model.RunStats {
	st := &model.RunStats{TotalRuns: len(runs)}
	var durSum float64
	var durN int
	for i := range runs {
		r := &runs[i]
		switch r.Status {
		case model.RunStatusCompleted, model.RunStatusCompletedWithErrors:
			st.SuccessfulRuns++
		case model.RunStatusFailed:
			st.FailedRuns++
		}
		st.RecordsProcessed += int64(r.Processed)
		st.RecordsFailed += int64(r.Failed)
		if r.EndTime != nil {
			durSum += r.EndTime.Sub(r.StartTime).Seconds()
			durN++
		}
		if st.LastRunTime == nil || r.StartTime.After(*st.LastRunTime) {
			t := r.StartTime
			st.LastRunTime = &t
		}
	}
	if durN > 0 {
		st.AvgDurationSecs = durSum / float64(durN)
	}
	return st
}

func scanSQLiteRun(row scannable) (*model.PipelineRun, error) {
	var r model.PipelineRun
	var status, start string
	var end, errMsg, metrics sql.NullString
	err := row.Scan(&r.ID, &r.Pipeline, &r.RunID, &start, &end, &status,
		&r.Processed, &r.Successful, &r.Failed, &errMsg, &metrics)
	if err != nil {
		return nil, err
	}
	r.Status = model.RunStatus(status)
	r.ErrorMessage = errMsg.String
	if r.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = parseNullTime(end); err != nil {
		return nil, err
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &r.Metrics); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal performance_metrics")
		}
	}
	return &r, nil
}

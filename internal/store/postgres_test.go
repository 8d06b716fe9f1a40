package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

var versionCols = []string{
	"surrogate_key", "order_key", "customer_id", "product_id", "quantity", "unit_price", "total_amount",
	"order_status", "order_date", "valid_from", "valid_to", "is_current", "cdc_operation", "cdc_timestamp", "batch_id",
}

func currentRow(sk int64, qty int, status string, from time.Time) *pgxmock.Rows {
	return pgxmock.NewRows(versionCols).AddRow(
		sk, int64(1), int64(11), int64(22), qty, 19.99, 19.99*float64(qty),
		status, base, from, (*time.Time)(nil), true, "INSERT", from, "b0",
	)
}

func expectKeyTx(mock pgxmock.PgxPoolIface, key string) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtextextended\(\$1, 0\)\)`).
		WithArgs(key).
		WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func expectClosedUntil(mock pgxmock.PgxPoolIface, key int64, latest *time.Time) {
	mock.ExpectQuery(`SELECT MAX\(valid_to\) FROM dim_orders_history WHERE order_key = \$1 AND NOT is_current`).
		WithArgs(key).
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(latest))
}

func TestPostgresStore_InsertOnAbsentKey(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	expectKeyTx(mock, "dim_orders_history:1")
	mock.ExpectQuery(`FROM dim_orders_history WHERE order_key = \$1 AND is_current FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnError(pgx.ErrNoRows)
	earlier := base.Add(-time.Hour)
	expectClosedUntil(mock, 1, &earlier)
	mock.ExpectQuery(`INSERT INTO dim_orders_history`).
		WithArgs(int64(1), int64(11), int64(22), 3, 19.99, pgxmock.AnyArg(), "SHIPPED", base, base, "INSERT", base, "b1").
		WillReturnRows(pgxmock.NewRows([]string{"surrogate_key"}).AddRow(int64(41)))
	mock.ExpectCommit()

	out, err := scd2.NewTransitioner(s).Apply(context.Background(), order(1, model.OpInsert, 3, "SHIPPED", base), "b1")
	require.NoError(t, err)
	assert.Equal(t, scd2.ActionInsert, out.Action)
	assert.Equal(t, int64(41), out.SurrogateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ReplayBeforeClosedHistoryIsNoop(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	deletedAt := base.Add(4 * time.Minute)

	expectKeyTx(mock, "dim_orders_history:1")
	mock.ExpectQuery(`AND is_current FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnError(pgx.ErrNoRows)
	expectClosedUntil(mock, 1, &deletedAt)
	mock.ExpectCommit()

	out, err := scd2.NewTransitioner(s).Apply(context.Background(), order(1, model.OpInsert, 3, "SHIPPED", base), "b1")
	require.NoError(t, err)
	assert.Equal(t, scd2.ActionNone, out.Action)
	assert.Equal(t, scd2.ReasonStaleClosed, out.Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseAndInsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t1 := base.Add(time.Minute)

	expectKeyTx(mock, "dim_orders_history:1")
	mock.ExpectQuery(`AND is_current FOR UPDATE`).
		WithArgs(int64(1)).
		WillReturnRows(currentRow(41, 3, "SHIPPED", base))
	mock.ExpectExec(`UPDATE dim_orders_history SET valid_to = \$1, is_current = false`).
		WithArgs(t1, int64(41)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO dim_orders_history`).
		WillReturnRows(pgxmock.NewRows([]string{"surrogate_key"}).AddRow(int64(42)))
	mock.ExpectCommit()

	out, err := scd2.NewTransitioner(s).Apply(context.Background(), order(1, model.OpUpdate, 4, "DELIVERED", t1), "b2")
	require.NoError(t, err)
	assert.Equal(t, scd2.ActionCloseAndInsert, out.Action)
	assert.Equal(t, int64(42), out.SurrogateKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_InsertFailureRollsBack(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	t1 := base.Add(time.Minute)

	expectKeyTx(mock, "dim_orders_history:1")
	mock.ExpectQuery(`AND is_current FOR UPDATE`).
		WillReturnRows(currentRow(41, 3, "SHIPPED", base))
	mock.ExpectExec(`UPDATE dim_orders_history`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO dim_orders_history`).
		WillReturnError(errors.New("duplicate key value violates unique constraint"))
	mock.ExpectRollback()

	_, err := scd2.NewTransitioner(s).Apply(context.Background(), order(1, model.OpUpdate, 4, "DELIVERED", t1), "b2")
	var terr *scd2.TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, err.Error(), "insert version")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseNoCurrentRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	expectKeyTx(mock, "dim_orders_history:7")
	mock.ExpectExec(`UPDATE dim_orders_history`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.WithKey(context.Background(), 7, func(ctx context.Context, tx scd2.KeyTx) error {
		return tx.Close(ctx, 99, base)
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no current row")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_History(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM dim_orders_history WHERE order_key = \$1 ORDER BY valid_from`).
		WithArgs(int64(1)).
		WillReturnRows(currentRow(41, 3, "SHIPPED", base))

	hist, err := s.History(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, int64(41), hist[0].SurrogateKey)
	assert.Equal(t, model.OpInsert, hist[0].SourceOperation)
	assert.True(t, hist[0].IsCurrent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Summary(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	earliest, latest := base, base.Add(time.Hour)
	mock.ExpectQuery(`COUNT\(DISTINCT order_key\)`).
		WillReturnRows(pgxmock.NewRows([]string{"total", "current", "historical", "unique", "min", "max"}).
			AddRow(int64(5), int64(3), int64(2), int64(3), &earliest, &latest))

	st, err := s.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.TotalRecords)
	assert.Equal(t, int64(3), st.UniqueKeys)
	assert.Equal(t, latest, *st.LatestValidFrom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_StartRun(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO pipeline_metadata`).
		WithArgs(model.PipelineExtractor, pgxmock.AnyArg(), pgxmock.AnyArg(), "running").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(8)))

	run, err := s.StartRun(context.Background(), model.PipelineExtractor)
	require.NoError(t, err)
	assert.Equal(t, int64(8), run.ID)
	assert.Len(t, run.RunID, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FinishRun_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE pipeline_metadata`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.FinishRun(context.Background(), 404, model.RunResult{Status: model.RunStatusCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LastRun_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM pipeline_metadata WHERE pipeline_name = \$1`).
		WithArgs(model.PipelineLoader).
		WillReturnError(pgx.ErrNoRows)

	run, err := s.LastRun(context.Background(), model.PipelineLoader)
	require.NoError(t, err)
	assert.Nil(t, run)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRuns_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	end := base.Add(time.Second)
	metrics := []byte(`{"artifacts":1}`)
	mock.ExpectQuery(`AND pipeline_name = \$1 AND status = \$2 ORDER BY start_time DESC, id DESC LIMIT \$3`).
		WithArgs(model.PipelineLoader, "failed", 100).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "pipeline_name", "run_id", "start_time", "end_time", "status",
			"records_processed", "records_successful", "records_failed", "error_message", "performance_metrics",
		}).AddRow(int64(1), model.PipelineLoader, "r1", base, &end, "failed", 3, 1, 2, strPtr("boom"), metrics))

	runs, err := s.ListRuns(context.Background(), RunFilter{Pipeline: model.PipelineLoader, Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].ErrorMessage)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.EqualValues(t, 1, runs[0].Metrics["artifacts"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT pg_advisory_lock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS cdc_schema_migrations`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery(`SELECT filename FROM cdc_schema_migrations`).
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).
			AddRow("001_dim_orders_history.sql").
			AddRow("002_pipeline_metadata.sql"))
	mock.ExpectExec(`SELECT pg_advisory_unlock`).WillReturnResult(pgxmock.NewResult("SELECT", 1))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func strPtr(s string) *string { return &s }

package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cdc-cli/internal/resilience"
)

var _ Pool = (pgxmock.PgxPoolIface)(nil)

func TestWithTx_Commit(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	mock.ExpectBeginTx(opts)
	mock.ExpectExec("SELECT 1").WillReturnResult(pgxmock.NewResult("SELECT", 1))
	mock.ExpectCommit()

	err = WithTx(context.Background(), mock, opts, func(ctx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctx, "SELECT 1")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_RollbackOnError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{})
	mock.ExpectRollback()

	boom := errors.New("boom")
	err = WithTx(context.Background(), mock, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBeginTx(pgx.TxOptions{}).WillReturnError(errors.New("no conn"))

	err = WithTx(context.Background(), mock, pgx.TxOptions{}, func(context.Context, pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
}

func TestConnect_NoDSN(t *testing.T) {
	_, err := Connect(context.Background(), "", PoolConfig{}, resilience.RetryConfig{MaxAttempts: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no database_url configured")
}

func TestConnect_BadDSN(t *testing.T) {
	_, err := Connect(context.Background(), "postgres://%zz", PoolConfig{}, resilience.RetryConfig{MaxAttempts: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse database_url")
}

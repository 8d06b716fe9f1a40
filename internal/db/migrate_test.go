package db

import (
	"context"
	"fmt"
	"testing"
	"testing/fstest"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testMigrationSet() MigrationSet {
	return MigrationSet{
		FS: fstest.MapFS{
			"migrations/002_b.sql":  {Data: []byte("CREATE TABLE b (id int)")},
			"migrations/001_a.sql":  {Data: []byte("CREATE TABLE a (id int)")},
			"migrations/README.txt": {Data: []byte("not a migration")},
		},
		Dir:    "migrations",
		Table:  "cdc_schema_migrations",
		LockID: 42,
	}
}

func expectLock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_lock").WithArgs(int64(42)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func expectUnlock(mock pgxmock.PgxPoolIface) {
	mock.ExpectExec("SELECT pg_advisory_unlock").WithArgs(int64(42)).WillReturnResult(pgxmock.NewResult("SELECT", 1))
}

func TestMigrate_FreshDB(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cdc_schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM cdc_schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	for _, name := range []string{"001_a.sql", "002_b.sql"} {
		mock.ExpectExec("CREATE TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec("INSERT INTO cdc_schema_migrations").
			WithArgs(name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock, testMigrationSet()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SomeAlreadyApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename FROM cdc_schema_migrations").
		WillReturnRows(pgxmock.NewRows([]string{"filename"}).AddRow("001_a.sql"))
	mock.ExpectExec("CREATE TABLE b").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO cdc_schema_migrations").
		WithArgs("002_b.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	expectUnlock(mock)

	require.NoError(t, Migrate(context.Background(), mock, testMigrationSet()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_EnsureTableError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(fmt.Errorf("permission denied"))
	expectUnlock(mock)

	err = Migrate(context.Background(), mock, testMigrationSet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure migration table")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_ExecMigrationError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectLock(mock)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT filename").WillReturnRows(pgxmock.NewRows([]string{"filename"}))
	mock.ExpectExec("CREATE TABLE a").WillReturnError(fmt.Errorf("syntax error"))
	expectUnlock(mock)

	err = Migrate(context.Background(), mock, testMigrationSet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "apply migration 001_a.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_LockError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").WillReturnError(fmt.Errorf("conn closed"))

	err = Migrate(context.Background(), mock, testMigrationSet())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "advisory lock")
	assert.NoError(t, mock.ExpectationsWereMet())
}

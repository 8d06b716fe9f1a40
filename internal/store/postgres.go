package store

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/resilience"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockID guards concurrent warehouse migrations.
const migrationLockID = 7_340_101

// PostgresStore implements Store using pgx.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects to the warehouse, retrying transient connection
// failures per retry.
func NewPostgres(ctx context.Context, connString string, poolCfg db.PoolConfig, retry resilience.RetryConfig) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString, poolCfg, retry)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect warehouse")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool, db.MigrationSet{
		FS:     migrationFS,
		Dir:    "migrations",
		Table:  "cdc_schema_migrations",
		LockID: migrationLockID,
	}), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/resilience"
)

// PoolConfig holds connection pool tuning.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// Connect opens a pgx pool and verifies it with a ping. Connection and ping
// failures are treated as transient and retried per retry; once the budget
// is spent the last error is returned.
func Connect(ctx context.Context, dsn string, pc PoolConfig, retry resilience.RetryConfig) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, eris.New("db: no database_url configured")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "db: parse database_url")
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	if retry.Name == "" {
		retry.Name = "db connect"
	}

	pool, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*pgxpool.Pool, error) {
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, resilience.NewTransientError(err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, resilience.NewTransientError(err)
		}
		return pool, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "db: connect")
	}

	zap.L().Debug("db: connected",
		zap.String("host", cfg.ConnConfig.Host),
		zap.String("database", cfg.ConnConfig.Database),
	)
	return pool, nil
}

// Package store implements the warehouse: the SCD2 order dimension and the
// pipeline run log, on Postgres or SQLite.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/resilience"
	"github.com/sells-group/cdc-cli/internal/scd2"
)

// RunFilter specifies criteria for listing pipeline runs.
type RunFilter struct {
	Pipeline string          `json:"pipeline,omitempty"`
	Status   model.RunStatus `json:"status,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// VersionFilter narrows dimension reads.
type VersionFilter struct {
	CurrentOnly bool
	Limit       int
}

// RunLog records pipeline runs.
type RunLog interface {
	StartRun(ctx context.Context, pipeline string) (*model.PipelineRun, error)
	FinishRun(ctx context.Context, id int64, result model.RunResult) error
}

// Store is the warehouse used by the loader and the reporting commands.
type Store interface {
	scd2.Table

	// Dimension reads
	ListVersions(ctx context.Context, filter VersionFilter) ([]model.Version, error)
	History(ctx context.Context, naturalKey int64) ([]model.Version, error)
	Summary(ctx context.Context) (*model.DimensionStats, error)

	// Run log
	RunLog
	LastRun(ctx context.Context, pipeline string) (*model.PipelineRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.PipelineRun, error)
	RunStats(ctx context.Context, pipeline string, since time.Time) (*model.RunStats, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// columns of dim_orders_history in scan order.
const versionColumns = `surrogate_key, order_key, customer_id, product_id, quantity, unit_price, total_amount,
	order_status, order_date, valid_from, valid_to, is_current, cdc_operation, cdc_timestamp, batch_id`

// columns of pipeline_metadata in scan order.
const runColumns = `id, pipeline_name, run_id, start_time, end_time, status,
	records_processed, records_successful, records_failed, error_message, performance_metrics`

func defaultLimit(n int) int {
	if n <= 0 {
		return 100
	}
	return n
}

// Open returns the warehouse for driver ("postgres" or "sqlite").
func Open(ctx context.Context, driver, dsn string, pool db.PoolConfig, retry resilience.RetryConfig) (Store, error) {
	switch driver {
	case "", "postgres":
		return NewPostgres(ctx, dsn, pool, retry)
	case "sqlite":
		if dsn == "" {
			dsn = "warehouse.db"
		}
		return NewSQLite(dsn)
	default:
		return nil, eris.Errorf("store: unknown warehouse driver %q", driver)
	}
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
)

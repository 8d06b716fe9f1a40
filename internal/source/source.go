// Package source reads the operational orders relation that change
// detection polls.
package source

import (
	"context"
	"embed"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationLockID = 7_340_102

// Row is one orders row as read from the source.
type Row struct {
	ID int64
	model.Attributes
	LastUpdated time.Time
	CreatedAt   time.Time
}

// DeletedRow is a row captured by the deletion audit trigger.
type DeletedRow struct {
	ID int64
	model.Attributes
	DeletedAt time.Time
}

// Snapshot is everything changed after a cursor, read from one consistent
// snapshot of the source.
type Snapshot struct {
	Rows    []Row
	Deleted []DeletedRow
}

// Source reads orders through a pgx pool.
type Source struct {
	pool         db.Pool
	auditDeletes bool
}

// New returns a Source. When auditDeletes is set, Changes also reads the
// deleted_orders side table.
func New(pool db.Pool, auditDeletes bool) *Source {
	return &Source{pool: pool, auditDeletes: auditDeletes}
}

const changedOrdersSQL = `SELECT id, customer_id, product_id, quantity, unit_price, total_amount,
	order_status, order_date, last_updated, created_at
FROM orders
WHERE last_updated > $1 OR created_at > $1
ORDER BY last_updated, id`

const deletedOrdersSQL = `SELECT order_id, customer_id, product_id, quantity, unit_price, total_amount,
	order_status, order_date, deleted_at
FROM deleted_orders
WHERE deleted_at > $1
ORDER BY deleted_at, order_id`

// snapshotTx is a read-only repeatable-read transaction: every query in it
// sees the same snapshot and no concurrent write.
var snapshotTx = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}

// Changes returns the rows modified or created after since.
func (s *Source) Changes(ctx context.Context, since time.Time) (*Snapshot, error) {
	snap := &Snapshot{}
	err := db.WithTx(ctx, s.pool, snapshotTx, func(ctx context.Context, tx pgx.Tx) error {
		var err error
		if snap.Rows, err = queryChanged(ctx, tx, since); err != nil {
			return err
		}
		if !s.auditDeletes {
			return nil
		}
		snap.Deleted, err = queryDeleted(ctx, tx, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func queryChanged(ctx context.Context, tx pgx.Tx, since time.Time) ([]Row, error) {
	rows, err := tx.Query(ctx, changedOrdersSQL, since)
	if err != nil {
		return nil, eris.Wrap(err, "source: query changed orders")
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.ProductID, &r.Quantity, &r.UnitPrice, &r.TotalAmount,
			&r.OrderStatus, &r.OrderDate, &r.LastUpdated, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "source: scan changed order")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "source: iterate changed orders")
}

func queryDeleted(ctx context.Context, tx pgx.Tx, since time.Time) ([]DeletedRow, error) {
	rows, err := tx.Query(ctx, deletedOrdersSQL, since)
	if err != nil {
		return nil, eris.Wrap(err, "source: query deleted orders")
	}
	defer rows.Close()

	var out []DeletedRow
	for rows.Next() {
		var r DeletedRow
		if err := rows.Scan(&r.ID, &r.CustomerID, &r.ProductID, &r.Quantity, &r.UnitPrice, &r.TotalAmount,
			&r.OrderStatus, &r.OrderDate, &r.DeletedAt); err != nil {
			return nil, eris.Wrap(err, "source: scan deleted order")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "source: iterate deleted orders")
}

// Ping checks source connectivity.
func (s *Source) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "source: ping")
}

// Migrate creates the development orders schema.
func Migrate(ctx context.Context, pool db.Pool) error {
	return eris.Wrap(db.Migrate(ctx, pool, db.MigrationSet{
		FS:     migrationFS,
		Dir:    "migrations",
		Table:  "cdc_source_migrations",
		LockID: migrationLockID,
	}), "source: migrate")
}

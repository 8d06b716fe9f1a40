package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
)

// WithKey runs fn in a read-committed transaction that holds a
// transaction-scoped advisory lock on the natural key. The lock serializes
// loaders in different processes; the current row is also read FOR UPDATE.
func (s *PostgresStore) WithKey(ctx context.Context, naturalKey int64, fn func(context.Context, scd2.KeyTx) error) error {
	return db.WithTx(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(ctx context.Context, tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, lockName(naturalKey)); err != nil {
			return eris.Wrapf(err, "postgres: lock key %d", naturalKey)
		}
		return fn(ctx, &pgKeyTx{tx: tx, key: naturalKey})
	})
}

func lockName(naturalKey int64) string {
	return fmt.Sprintf("dim_orders_history:%d", naturalKey)
}

type pgKeyTx struct {
	tx  pgx.Tx
	key int64
}

func (t *pgKeyTx) Current(ctx context.Context) (*model.Version, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+versionColumns+` FROM dim_orders_history WHERE order_key = $1 AND is_current FOR UPDATE`,
		t.key,
	)
	v, err := scanPgVersion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: current version %d", t.key)
	}
	return v, nil
}

func (t *pgKeyTx) ClosedUntil(ctx context.Context) (*time.Time, error) {
	var latest *time.Time
	err := t.tx.QueryRow(ctx,
		`SELECT MAX(valid_to) FROM dim_orders_history WHERE order_key = $1 AND NOT is_current`,
		t.key,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: closed history %d", t.key)
	}
	return latest, nil
}

func (t *pgKeyTx) Close(ctx context.Context, surrogateKey int64, validTo time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE dim_orders_history SET valid_to = $1, is_current = false, updated_at = now()
		 WHERE surrogate_key = $2 AND is_current`,
		validTo, surrogateKey,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: close version %d", surrogateKey)
	}
	if tag.RowsAffected() != 1 {
		return eris.Errorf("postgres: close version %d: no current row", surrogateKey)
	}
	return nil
}

func (t *pgKeyTx) Insert(ctx context.Context, v model.Version) (int64, error) {
	var sk int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO dim_orders_history (order_key, customer_id, product_id, quantity, unit_price, total_amount,
			order_status, order_date, valid_from, valid_to, is_current, cdc_operation, cdc_timestamp, batch_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, true, $10, $11, $12)
		 RETURNING surrogate_key`,
		v.NaturalKey, v.CustomerID, v.ProductID, v.Quantity, v.UnitPrice, v.TotalAmount,
		v.OrderStatus, v.OrderDate, v.ValidFrom, string(v.SourceOperation), v.CaptureTimestamp, v.BatchID,
	).Scan(&sk)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: insert version for %d", v.NaturalKey)
	}
	return sk, nil
}

func scanPgVersion(row pgx.Row) (*model.Version, error) {
	var v model.Version
	var op string
	err := row.Scan(
		&v.SurrogateKey, &v.NaturalKey, &v.CustomerID, &v.ProductID, &v.Quantity, &v.UnitPrice, &v.TotalAmount,
		&v.OrderStatus, &v.OrderDate, &v.ValidFrom, &v.ValidTo, &v.IsCurrent, &op, &v.CaptureTimestamp, &v.BatchID,
	)
	if err != nil {
		return nil, err
	}
	v.SourceOperation = model.Operation(op)
	normalizeVersion(&v)
	return &v, nil
}

func normalizeVersion(v *model.Version) {
	v.OrderDate = model.Truncate(v.OrderDate)
	v.ValidFrom = model.Truncate(v.ValidFrom)
	v.CaptureTimestamp = model.Truncate(v.CaptureTimestamp)
	if v.ValidTo != nil {
		vt := model.Truncate(*v.ValidTo)
		v.ValidTo = &vt
	}
}

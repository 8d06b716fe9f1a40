package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
)

// WithKey runs fn in a transaction. The single pooled connection already
// serializes writers in this process; the partial unique index on current
// rows rejects a second current version from any other writer.
func (s *SQLiteStore) WithKey(ctx context.Context, naturalKey int64, fn func(context.Context, scd2.KeyTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(ctx, &sqliteKeyTx{tx: tx, key: naturalKey}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

type sqliteKeyTx struct {
	tx  *sql.Tx
	key int64
}

func (t *sqliteKeyTx) Current(ctx context.Context) (*model.Version, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM dim_orders_history WHERE order_key = ? AND is_current = 1`,
		t.key,
	)
	v, err := scanSQLiteVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: current version %d", t.key)
	}
	return v, nil
}

func (t *sqliteKeyTx) ClosedUntil(ctx context.Context) (*time.Time, error) {
	var latest sql.NullString
	err := t.tx.QueryRowContext(ctx,
		`SELECT MAX(valid_to) FROM dim_orders_history WHERE order_key = ? AND is_current = 0`,
		t.key,
	).Scan(&latest)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: closed history %d", t.key)
	}
	return parseNullTime(latest)
}

func (t *sqliteKeyTx) Close(ctx context.Context, surrogateKey int64, validTo time.Time) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE dim_orders_history SET valid_to = ?, is_current = 0, updated_at = ?
		 WHERE surrogate_key = ? AND is_current = 1`,
		formatTime(validTo), formatTime(time.Now()), surrogateKey,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close version %d", surrogateKey)
	}
	return checkRowsAffected(res, "current version", surrogateKey)
}

func (t *sqliteKeyTx) Insert(ctx context.Context, v model.Version) (int64, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO dim_orders_history (order_key, customer_id, product_id, quantity, unit_price, total_amount,
			order_status, order_date, valid_from, valid_to, is_current, cdc_operation, cdc_timestamp, batch_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, 1, ?, ?, ?)`,
		v.NaturalKey, v.CustomerID, v.ProductID, v.Quantity, v.UnitPrice, v.TotalAmount,
		v.OrderStatus, formatTime(v.OrderDate), formatTime(v.ValidFrom), string(v.SourceOperation),
		formatTime(v.CaptureTimestamp), v.BatchID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert version for %d", v.NaturalKey)
	}
	sk, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: last insert id")
	}
	return sk, nil
}

func scanSQLiteVersion(row scannable) (*model.Version, error) {
	var v model.Version
	var op, orderDate, validFrom, capture string
	var validTo sql.NullString
	err := row.Scan(
		&v.SurrogateKey, &v.NaturalKey, &v.CustomerID, &v.ProductID, &v.Quantity, &v.UnitPrice, &v.TotalAmount,
		&v.OrderStatus, &orderDate, &validFrom, &validTo, &v.IsCurrent, &op, &capture, &v.BatchID,
	)
	if err != nil {
		return nil, err
	}
	v.SourceOperation = model.Operation(op)
	if v.OrderDate, err = parseTime(orderDate); err != nil {
		return nil, err
	}
	if v.ValidFrom, err = parseTime(validFrom); err != nil {
		return nil, err
	}
	if v.CaptureTimestamp, err = parseTime(capture); err != nil {
		return nil, err
	}
	if v.ValidTo, err = parseNullTime(validTo); err != nil {
		return nil, err
	}
	return &v, nil
}

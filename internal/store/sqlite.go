package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite. Times are stored
// as fixed-width UTC text so that lexical and chronological order agree.
type SQLiteStore struct {
	db *sql.DB
}

// sqliteTime is the storage layout for every timestamp column.
const sqliteTime = "2006-01-02T15:04:05.000000Z07:00"

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
// The pool is limited to one connection, which makes every transaction
// exclusive within the process.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS dim_orders_history (
	surrogate_key INTEGER PRIMARY KEY AUTOINCREMENT,
	order_key     INTEGER NOT NULL,
	customer_id   INTEGER NOT NULL,
	product_id    INTEGER NOT NULL,
	quantity      INTEGER NOT NULL,
	unit_price    REAL NOT NULL,
	total_amount  REAL NOT NULL,
	order_status  TEXT NOT NULL,
	order_date    TEXT NOT NULL,
	valid_from    TEXT NOT NULL,
	valid_to      TEXT,
	is_current    INTEGER NOT NULL DEFAULT 1,
	cdc_operation TEXT NOT NULL CHECK (cdc_operation IN ('INSERT', 'UPDATE', 'DELETE')),
	cdc_timestamp TEXT NOT NULL,
	batch_id      TEXT NOT NULL,
	created_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	updated_at    TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now')),
	CHECK (valid_to IS NULL OR valid_to > valid_from),
	CHECK ((is_current = 1 AND valid_to IS NULL) OR (is_current = 0 AND valid_to IS NOT NULL))
);

CREATE UNIQUE INDEX IF NOT EXISTS uq_dim_orders_current ON dim_orders_history(order_key) WHERE is_current = 1;
CREATE INDEX IF NOT EXISTS idx_dim_orders_key_valid_from ON dim_orders_history(order_key, valid_from);
CREATE INDEX IF NOT EXISTS idx_dim_orders_batch ON dim_orders_history(batch_id);

CREATE TABLE IF NOT EXISTS pipeline_metadata (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline_name       TEXT NOT NULL,
	run_id              TEXT NOT NULL UNIQUE,
	start_time          TEXT NOT NULL,
	end_time            TEXT,
	status              TEXT NOT NULL,
	records_processed   INTEGER NOT NULL DEFAULT 0,
	records_successful  INTEGER NOT NULL DEFAULT 0,
	records_failed      INTEGER NOT NULL DEFAULT 0,
	error_message       TEXT,
	performance_metrics TEXT
);

CREATE INDEX IF NOT EXISTS idx_pipeline_metadata_name_start ON pipeline_metadata(pipeline_name, start_time DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func formatNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t.UTC(), nil
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

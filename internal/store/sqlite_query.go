package store

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

func (s *SQLiteStore) ListVersions(ctx context.Context, filter VersionFilter) ([]model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM dim_orders_history`
	if filter.CurrentOnly {
		query += ` WHERE is_current = 1`
	}
	query += ` ORDER BY order_key, valid_from, surrogate_key`
	args := []any{}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	return s.queryVersions(ctx, query, args...)
}

func (s *SQLiteStore) History(ctx context.Context, naturalKey int64) ([]model.Version, error) {
	return s.queryVersions(ctx,
		`SELECT `+versionColumns+` FROM dim_orders_history WHERE order_key = ? ORDER BY valid_from, surrogate_key`,
		naturalKey,
	)
}

func (s *SQLiteStore) queryVersions(ctx context.Context, query string, args ...any) ([]model.Version, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query versions")
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanSQLiteVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate versions")
}

func (s *SQLiteStore) Summary(ctx context.Context) (*model.DimensionStats, error) {
	var st model.DimensionStats
	var earliest, latest sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN is_current = 1 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN is_current = 0 THEN 1 ELSE 0 END), 0),
		       COUNT(DISTINCT order_key),
		       MIN(valid_from),
		       MAX(valid_from)
		FROM dim_orders_history`,
	).Scan(&st.TotalRecords, &st.CurrentRecords, &st.HistoricalRecords, &st.UniqueKeys, &earliest, &latest)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summary")
	}
	if st.EarliestValidFrom, err = parseNullTime(earliest); err != nil {
		return nil, err
	}
	if st.LatestValidFrom, err = parseNullTime(latest); err != nil {
		return nil, err
	}
	return &st, nil
}

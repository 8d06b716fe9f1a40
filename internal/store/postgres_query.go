package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/model"
)

// ListVersions returns dimension rows ordered by key then valid_from.
func (s *PostgresStore) ListVersions(ctx context.Context, filter VersionFilter) ([]model.Version, error) {
	query := `SELECT ` + versionColumns + ` FROM dim_orders_history`
	if filter.CurrentOnly {
		query += ` WHERE is_current`
	}
	query += ` ORDER BY order_key, valid_from, surrogate_key`
	args := []any{}
	if filter.Limit > 0 {
		query += ` LIMIT $1`
		args = append(args, filter.Limit)
	}
	return s.queryVersions(ctx, query, args...)
}

// History returns every version of one key in validity order.
func (s *PostgresStore) History(ctx context.Context, naturalKey int64) ([]model.Version, error) {
	return s.queryVersions(ctx,
		`SELECT `+versionColumns+` FROM dim_orders_history WHERE order_key = $1 ORDER BY valid_from, surrogate_key`,
		naturalKey,
	)
}

func (s *PostgresStore) queryVersions(ctx context.Context, query string, args ...any) ([]model.Version, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query versions")
	}
	defer rows.Close()

	var out []model.Version
	for rows.Next() {
		v, err := scanPgVersion(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan version")
		}
		out = append(out, *v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate versions")
}

// Summary computes dimension statistics.
func (s *PostgresStore) Summary(ctx context.Context) (*model.DimensionStats, error) {
	var st model.DimensionStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE is_current),
		       COUNT(*) FILTER (WHERE NOT is_current),
		       COUNT(DISTINCT order_key),
		       MIN(valid_from),
		       MAX(valid_from)
		FROM dim_orders_history`,
	).Scan(&st.TotalRecords, &st.CurrentRecords, &st.HistoricalRecords, &st.UniqueKeys,
		&st.EarliestValidFrom, &st.LatestValidFrom)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summary")
	}
	return &st, nil
}

package db

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MigrationSet is a directory of ordered SQL files plus the table that
// records which of them have been applied.
type MigrationSet struct {
	FS     fs.FS
	Dir    string
	Table  string
	LockID int64
}

// Migrate runs all pending SQL migrations of set in lexicographic order.
// A session advisory lock keeps concurrent runs from interleaving.
func Migrate(ctx context.Context, pool Pool, set MigrationSet) error {
	log := zap.L().With(zap.String("component", "db.migrate"), zap.String("table", set.Table))

	if _, err := pool.Exec(ctx, "SELECT pg_advisory_lock($1)", set.LockID); err != nil {
		return eris.Wrap(err, "db: acquire migration advisory lock")
	}
	defer func() {
		if _, err := pool.Exec(ctx, "SELECT pg_advisory_unlock($1)", set.LockID); err != nil {
			log.Warn("db: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := ensureMigrationTable(ctx, pool, set.Table); err != nil {
		return err
	}

	entries, err := fs.ReadDir(set.FS, set.Dir)
	if err != nil {
		return eris.Wrap(err, "db: read migration dir")
	}

	// Zero-padded names sort in application order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := appliedMigrations(ctx, pool, set.Table)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] || path.Ext(name) != ".sql" {
			continue
		}

		data, err := fs.ReadFile(set.FS, path.Join(set.Dir, name))
		if err != nil {
			return eris.Wrapf(err, "db: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "db: apply migration %s", name)
		}

		if _, err := pool.Exec(ctx,
			fmt.Sprintf("INSERT INTO %s (filename, applied_at) VALUES ($1, now())", set.Table),
			name,
		); err != nil {
			return eris.Wrapf(err, "db: record migration %s", name)
		}
	}

	return nil
}

func ensureMigrationTable(ctx context.Context, pool Pool, table string) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, table)
	if _, err := pool.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, pool Pool, table string) (map[string]bool, error) {
	rows, err := pool.Query(ctx, fmt.Sprintf("SELECT filename FROM %s", table))
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/rotisserie/eris"

	"github.com/sells-group/cdc-cli/internal/batchlog"
	"github.com/sells-group/cdc-cli/internal/cdc"
	"github.com/sells-group/cdc-cli/internal/config"
	"github.com/sells-group/cdc-cli/internal/db"
	"github.com/sells-group/cdc-cli/internal/loader"
	"github.com/sells-group/cdc-cli/internal/metrics"
	"github.com/sells-group/cdc-cli/internal/resilience"
	"github.com/sells-group/cdc-cli/internal/source"
	"github.com/sells-group/cdc-cli/internal/state"
	"github.com/sells-group/cdc-cli/internal/store"
)

// Lock file names inside the state directory. One extractor and one loader
// may run at a time.
const (
	extractorLock = ".extractor.lock"
	loaderLock    = ".loader.lock"
)

// initStore opens the warehouse and applies its migrations.
func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	st, err := store.Open(ctx, c.Warehouse.Driver, c.Warehouse.DatabaseURL, c.Warehouse.Pool(), c.Retry.Policy())
	if err != nil {
		return nil, eris.Wrap(err, "open warehouse")
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate warehouse")
	}
	return st, nil
}

// hasWarehouse reports whether the warehouse is configured well enough to
// open. The extractor records its runs there when it is.
func hasWarehouse(c *config.Config) bool {
	return c.Warehouse.Driver == "sqlite" || c.Warehouse.DatabaseURL != ""
}

// connectSource opens a pool on the source database.
func connectSource(ctx context.Context, c *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, c.Source.DatabaseURL, db.PoolConfig{MaxConns: 4, MinConns: 1}, c.Retry.Policy())
	if err != nil {
		return nil, eris.Wrap(err, "connect source")
	}
	return pool, nil
}

const sourceBreaker = "source"

// newExtractor wires the extractor cycle over an open source pool.
func newExtractor(c *config.Config, pool db.Pool, runs store.RunLog, m *metrics.Metrics, clk clock.Clock) (*cdc.Extractor, error) {
	fs, err := state.NewFileStore(c.CDC.StateDir)
	if err != nil {
		return nil, err
	}
	writer, err := batchlog.NewWriter(c.CDC.LogDir)
	if err != nil {
		return nil, err
	}

	bc := c.Circuit.Breaker()
	bc.Clock = clk
	if m != nil {
		bc.Observer = m
		m.ObserveCircuit(sourceBreaker, resilience.CircuitClosed)
	}

	return cdc.NewExtractor(cdc.ExtractorConfig{
		Watermark: cdc.NewWatermark(fs, clk, c.CDC.Lookback()),
		Detector:  cdc.NewDetector(source.New(pool, c.Source.AuditDeletes), clk, resilience.NewBreaker(sourceBreaker, bc)),
		Writer:    writer,
		Runs:      runs,
		Metrics:   m,
		Clock:     clk,
	}), nil
}

// newLoader wires the loader cycle over an open warehouse.
func newLoader(c *config.Config, st store.Store, m *metrics.Metrics, clk clock.Clock) (*loader.Loader, error) {
	fs, err := state.NewFileStore(c.CDC.StateDir)
	if err != nil {
		return nil, err
	}
	return loader.New(loader.Config{
		Dir:                  c.CDC.LogDir,
		QuarantineDir:        c.Loader.QuarantineDir,
		Workers:              c.Loader.Workers,
		MaxTransitionsPerSec: c.Loader.MaxTransitionsPerSec,
		Retention:            c.Loader.Retention(),
	}, loader.Deps{
		Warehouse: st,
		Ledger:    batchlog.NewLedger(fs),
		Runs:      st,
		Metrics:   m,
		Clock:     clk,
	}), nil
}

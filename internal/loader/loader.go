// Package loader applies batch artifacts to the SCD2 order dimension.
//
// A cycle discovers artifacts in capture order, skips those the ledger has
// already recorded, coalesces each batch to one change per key and applies
// the changes through the transitioner. An artifact is recorded in the
// ledger only when every one of its transitions succeeded.
package loader

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cdc-cli/internal/batchlog"
	"github.com/sells-group/cdc-cli/internal/metrics"
	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/scd2"
	"github.com/sells-group/cdc-cli/internal/store"
)

// Warehouse is what the loader needs from the dimension store.
type Warehouse interface {
	scd2.Table
	Summary(ctx context.Context) (*model.DimensionStats, error)
}

// Config controls a Loader.
type Config struct {
	// Dir holds the batch artifacts.
	Dir string
	// QuarantineDir receives corrupt artifacts. Defaults to Dir/quarantine.
	QuarantineDir string
	// Workers bounds concurrent transitions within a batch. Default: 4.
	Workers int
	// MaxTransitionsPerSec throttles transitions; 0 means unlimited.
	MaxTransitionsPerSec float64
	// Retention is how long applied artifacts are kept; 0 disables pruning.
	Retention time.Duration
}

// Deps are the collaborators of a Loader. Runs, Metrics and Clock are
// optional.
type Deps struct {
	Warehouse Warehouse
	Ledger    *batchlog.Ledger
	Runs      store.RunLog
	Metrics   *metrics.Metrics
	Clock     clock.Clock
}

// Loader runs load cycles.
type Loader struct {
	cfg     Config
	deps    Deps
	tr      *scd2.Transitioner
	limiter *rate.Limiter
	log     *zap.Logger
}

// New returns a Loader.
func New(cfg Config, deps Deps) *Loader {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QuarantineDir == "" {
		cfg.QuarantineDir = filepath.Join(cfg.Dir, "quarantine")
	}
	if deps.Clock == nil {
		deps.Clock = clock.WallClock
	}

	l := &Loader{
		cfg:  cfg,
		deps: deps,
		tr:   scd2.NewTransitioner(deps.Warehouse),
		log:  zap.L().With(zap.String("component", "loader")),
	}
	if cfg.MaxTransitionsPerSec > 0 {
		burst := int(cfg.MaxTransitionsPerSec)
		if burst < 1 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.MaxTransitionsPerSec), burst)
	}
	return l
}

// RunOnce performs one load cycle. Cancellation is honoured between
// artifacts; transitions already started run to commit or rollback.
func (l *Loader) RunOnce(ctx context.Context) (*Result, error) {
	start := l.deps.Clock.Now()
	run := l.startRun(ctx)

	res, err := l.load(ctx)
	res.Duration = l.deps.Clock.Now().Sub(start)
	l.deps.Metrics.ObserveCycle(model.PipelineLoader, res.Duration, err)

	l.finishRun(ctx, run, res, err)

	l.log.Info("loader: cycle complete",
		zap.Int("artifacts", res.Artifacts),
		zap.Int("applied", res.Applied),
		zap.Int("skipped", res.Skipped),
		zap.Int("corrupt", res.Corrupt),
		zap.Int("records", res.Records),
		zap.Int("failed", res.Failed()),
		zap.Duration("duration", res.Duration),
	)
	return res, err
}

func (l *Loader) load(ctx context.Context) (*Result, error) {
	res := &Result{}

	l.deps.Ledger.Load()
	names, err := batchlog.Discover(l.cfg.Dir)
	if err != nil {
		return res, err
	}
	res.Artifacts = len(names)

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			res.Cancelled = true
			return res, err
		}
		l.loadArtifact(ctx, name, res)
	}

	if stats, err := l.deps.Warehouse.Summary(ctx); err != nil {
		l.log.Warn("loader: summary statistics unavailable", zap.Error(err))
	} else {
		res.Stats = stats
		l.deps.Metrics.SetDimension(stats)
	}

	if l.cfg.Retention > 0 {
		cutoff := l.deps.Clock.Now().Add(-l.cfg.Retention)
		pruned, err := batchlog.Prune(l.cfg.Dir, l.deps.Ledger, cutoff)
		if err != nil {
			l.log.Warn("loader: prune incomplete", zap.Error(err))
		}
		res.Pruned = len(pruned)
	}
	return res, nil
}

func (l *Loader) loadArtifact(ctx context.Context, name string, res *Result) {
	log := l.log.With(zap.String("artifact", name))

	a, err := batchlog.Read(l.cfg.Dir, name)
	if err != nil {
		var ce *batchlog.CorruptionError
		if errors.As(err, &ce) {
			res.Corrupt++
			l.deps.Metrics.ArtifactSkipped("corrupt")
			log.Error("loader: corrupt artifact", zap.Error(err))
			if qerr := batchlog.Quarantine(l.cfg.Dir, l.cfg.QuarantineDir, name); qerr != nil {
				log.Error("loader: quarantine failed", zap.Error(qerr))
			}
			return
		}
		// Unreadable for now; the next cycle retries it.
		res.Unreadable++
		log.Warn("loader: artifact unreadable", zap.Error(err))
		return
	}

	if l.deps.Ledger.Applied(name, a.Identity) {
		res.Skipped++
		l.deps.Metrics.ArtifactSkipped("applied")
		log.Debug("loader: artifact already applied")
		return
	}

	res.Records += len(a.Records) + len(a.Invalid)
	res.ValidationFailed += len(a.Invalid)
	for _, verr := range a.Invalid {
		l.deps.Metrics.RecordFailed("validation")
		log.Warn("loader: invalid record skipped", zap.Error(verr))
	}

	effective := scd2.Coalesce(a.Records)
	res.Coalesced += len(a.Records) - len(effective)

	failures := l.apply(ctx, effective, a, res)
	if failures > 0 {
		res.Retried++
		log.Warn("loader: artifact left unapplied for retry", zap.Int("transition_failures", failures))
		return
	}

	if err := l.deps.Ledger.Mark(name, a.Identity); err != nil {
		log.Warn("loader: ledger write failed, artifact may be re-applied", zap.Error(err))
	}
	res.Applied++
}

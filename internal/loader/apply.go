package loader

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/cdc-cli/internal/batchlog"
	"github.com/sells-group/cdc-cli/internal/model"
)

// apply runs the effective changes of one artifact on a bounded worker
// pool and returns the number of failed transitions. Each change has a
// distinct natural key, so workers never contend for the same key.
func (l *Loader) apply(ctx context.Context, changes []model.ChangeRecord, a *batchlog.Artifact, res *Result) int {
	// In-flight transitions are not interrupted by cancellation.
	ctx = context.WithoutCancel(ctx)
	batchID := batchlog.BatchID(a.Name)

	var (
		mu       sync.Mutex
		failures int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Workers)
	for _, change := range changes {
		g.Go(func() error {
			if l.limiter != nil {
				if err := l.limiter.Wait(gctx); err != nil {
					return err
				}
			}

			out, err := l.tr.Apply(gctx, change, batchID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				res.TransitionFailed++
				l.deps.Metrics.RecordFailed("transition")
				l.log.Error("loader: transition failed",
					zap.String("artifact", a.Name),
					zap.Int64("natural_key", change.NaturalKey),
					zap.Error(err),
				)
				return nil
			}
			res.count(out)
			l.deps.Metrics.Transition(out.Action.String(), out.Reason, out.Anomaly)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.log.Error("loader: worker pool aborted", zap.String("artifact", a.Name), zap.Error(err))
		mu.Lock()
		failures++
		mu.Unlock()
	}
	return failures
}


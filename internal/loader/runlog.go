package loader

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/model"
)

func (l *Loader) startRun(ctx context.Context) *model.PipelineRun {
	if l.deps.Runs == nil {
		return nil
	}
	run, err := l.deps.Runs.StartRun(ctx, model.PipelineLoader)
	if err != nil {
		l.log.Warn("loader: could not record run start", zap.Error(err))
		return nil
	}
	return run
}

func (l *Loader) finishRun(ctx context.Context, run *model.PipelineRun, res *Result, err error) {
	if run == nil {
		return
	}
	if ferr := l.deps.Runs.FinishRun(context.WithoutCancel(ctx), run.ID, res.RunResult(err)); ferr != nil {
		l.log.Warn("loader: could not record run end", zap.Int64("run_id", run.ID), zap.Error(ferr))
	}
}

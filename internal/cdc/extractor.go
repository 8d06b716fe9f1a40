package cdc

import (
	"context"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/sells-group/cdc-cli/internal/batchlog"
	"github.com/sells-group/cdc-cli/internal/metrics"
	"github.com/sells-group/cdc-cli/internal/model"
	"github.com/sells-group/cdc-cli/internal/store"
)

// ExtractorConfig wires an Extractor. Runs, Metrics and Clock are optional.
type ExtractorConfig struct {
	Watermark *Watermark
	Detector  *Detector
	Writer    *batchlog.Writer
	Runs      store.RunLog
	Metrics   *metrics.Metrics
	Clock     clock.Clock
}

// Extractor runs one detect, persist, advance cycle at a time.
type Extractor struct {
	cfg ExtractorConfig
	log *zap.Logger
}

// NewExtractor returns an Extractor.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	return &Extractor{
		cfg: cfg,
		log: zap.L().With(zap.String("component", "cdc.extractor")),
	}
}

// ExtractResult summarises one cycle.
type ExtractResult struct {
	Since     time.Time
	Changes   int
	Artifact  string
	Watermark time.Time
	Advanced  bool
}

// RunOnce polls the source once. The watermark moves only after the batch
// artifact has been written; a poll with no changes writes nothing and
// leaves the watermark alone.
func (e *Extractor) RunOnce(ctx context.Context) (*ExtractResult, error) {
	start := e.cfg.Clock.Now()
	run := startRun(ctx, e.cfg.Runs, model.PipelineExtractor, e.log)

	res, err := e.extract(ctx)
	e.cfg.Metrics.ObserveCycle(model.PipelineExtractor, e.cfg.Clock.Now().Sub(start), err)

	result := model.RunResult{Status: model.RunStatusCompleted}
	if res != nil {
		result.Processed = res.Changes
		result.Successful = res.Changes
		result.Metrics = map[string]any{
			"since":       res.Since,
			"artifact":    res.Artifact,
			"watermark":   res.Watermark,
			"advanced":    res.Advanced,
			"duration_ms": e.cfg.Clock.Now().Sub(start).Milliseconds(),
		}
	}
	if err != nil {
		// Shutdown leaves the watermark untouched and is not a failure.
		if ctx.Err() == nil {
			result.Status = model.RunStatusFailed
		} else if result.Metrics != nil {
			result.Metrics["cancelled"] = true
		}
		result.ErrorMessage = err.Error()
	}
	finishRun(ctx, e.cfg.Runs, run, result, e.log)
	return res, err
}

func (e *Extractor) extract(ctx context.Context) (*ExtractResult, error) {
	since := e.cfg.Watermark.Get()
	res := &ExtractResult{Since: since, Watermark: since}

	det, err := e.cfg.Detector.Detect(ctx, since)
	if err != nil {
		e.log.Warn("cdc: detection failed, watermark unchanged", zap.Time("since", since), zap.Error(err))
		return res, err
	}
	if len(det.Records) == 0 {
		e.log.Debug("cdc: no changes", zap.Time("since", since))
		return res, nil
	}

	batch := model.NewBatch(det.Records, det.CapturedAt, since)
	name, err := e.cfg.Writer.Write(batch)
	if err != nil {
		return res, err
	}
	res.Changes = len(det.Records)
	res.Artifact = name
	e.cfg.Metrics.BatchWritten(res.Changes)

	next := batch.MaxSourceModified()
	advanced, err := e.cfg.Watermark.Advance(next)
	if err == nil && advanced {
		res.Watermark = model.Truncate(next)
		res.Advanced = true
		e.cfg.Metrics.SetWatermark(res.Watermark)
	}

	e.log.Info("cdc: batch written",
		zap.String("artifact", name),
		zap.Int("changes", res.Changes),
		zap.Time("since", since),
		zap.Time("watermark", res.Watermark),
	)
	return res, nil
}

func startRun(ctx context.Context, runs store.RunLog, pipeline string, log *zap.Logger) *model.PipelineRun {
	if runs == nil {
		return nil
	}
	run, err := runs.StartRun(ctx, pipeline)
	if err != nil {
		log.Warn("cdc: could not record run start", zap.Error(err))
		return nil
	}
	return run
}

func finishRun(ctx context.Context, runs store.RunLog, run *model.PipelineRun, result model.RunResult, log *zap.Logger) {
	if runs == nil || run == nil {
		return
	}
	if err := runs.FinishRun(context.WithoutCancel(ctx), run.ID, result); err != nil {
		log.Warn("cdc: could not record run end", zap.Int64("run_id", run.ID), zap.Error(err))
	}
}

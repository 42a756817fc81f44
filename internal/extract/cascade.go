package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/invoices-tracker/constants"
	"github.com/joseph-ayodele/invoices-tracker/internal/common"
	"github.com/joseph-ayodele/invoices-tracker/internal/entity"
)

// Strategy is one way of turning a document into fields. A stage that finds
// nothing returns common.ErrStageEmpty.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, doc *Document) (entity.ExtractionResult, error)
}

// StageFailure records why a stage did not produce the result.
type StageFailure struct {
	Stage string
	Err   error
}

func (f StageFailure) String() string {
	return f.Stage + ": " + f.Err.Error()
}

// Outcome is the cascade result plus the failures of the stages before it.
type Outcome struct {
	Result   entity.ExtractionResult
	Failures []StageFailure
}

// Cascade tries its strategies in order; the first non-empty result wins.
// Stages run sequentially so a paid call is never made once an earlier stage
// has succeeded.
type Cascade struct {
	stages []Strategy
	logger *slog.Logger
}

func NewCascade(logger *slog.Logger, stages ...Strategy) *Cascade {
	if logger == nil {
		logger = slog.Default()
	}
	var kept []Strategy
	for _, s := range stages {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &Cascade{stages: kept, logger: logger}
}

// Stages returns the stage names in order.
func (c *Cascade) Stages() []string {
	names := make([]string, len(c.stages))
	for i, s := range c.stages {
		names[i] = s.Name()
	}
	return names
}

// Extract never returns an error: when every stage fails the result is
// empty with confidence 0.
func (c *Cascade) Extract(ctx context.Context, doc *Document) Outcome {
	log := common.LoggerFrom(ctx, c.logger).With("filename", doc.Filename)
	var out Outcome
	for _, s := range c.stages {
		start := time.Now()
		res, err := runStage(ctx, s, doc)
		if err == nil && res.IsEmpty() {
			err = common.ErrStageEmpty
		}
		if err != nil {
			log.Info("cascade.stage.failed", "stage", s.Name(), "err", err, "elapsed_ms", time.Since(start).Milliseconds())
			if !errors.Is(err, common.ErrStageEmpty) {
				out.Failures = append(out.Failures, StageFailure{Stage: s.Name(), Err: err})
			}
			continue
		}
		if res.Method == "" {
			res.Method = s.Name()
		}
		log.Info("cascade.stage.ok", "stage", s.Name(), "fields", res.FieldCount(), "confidence", res.Confidence, "elapsed_ms", time.Since(start).Milliseconds())
		out.Result = res
		return out
	}
	out.Result = entity.ExtractionResult{Confidence: 0, Method: constants.StageNone}
	log.Warn("cascade.exhausted", "stages", len(c.stages), "failures", len(out.Failures))
	return out
}

func runStage(ctx context.Context, s Strategy, doc *Document) (res entity.ExtractionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = entity.ExtractionResult{}, fmt.Errorf("stage panic: %v", r)
		}
	}()
	if err := ctx.Err(); err != nil {
		return entity.ExtractionResult{}, err
	}
	return s.Extract(ctx, doc)
}

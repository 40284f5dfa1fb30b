package cycle

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyluth/kiln/internal/generator"
	"github.com/dyluth/kiln/internal/strategy"
	"github.com/dyluth/kiln/pkg/blackboard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// strategyLoop waits for the goal baton, runs the strategy stage and hands the
// baton to the enactment stage.
func (r *run) strategyLoop(ctx context.Context) error {
	view := r.shared.StrategyView()

	for {
		if err := r.ring.GoalReady.Wait(ctx); err != nil {
			return nil
		}
		if err := r.transition(stageStrategy, StateStrategyRunning); err != nil {
			return err
		}

		r.runStrategy(ctx, view)
		r.console.Rule()

		if !pause(ctx, r.opts.StrategyDelay) {
			return nil
		}
		if err := r.transition(stageStrategy, StateWaitEnact); err != nil {
			return err
		}
		r.ring.StrategyReady.Arm()
	}
}

func (r *run) runStrategy(ctx context.Context, view StrategyView) {
	ctx, span := r.tracer.Start(ctx, "cycle.strategy", trace.WithAttributes(attribute.String("cycle.id", r.id)))
	defer span.End()

	logger := r.logger.With(zap.String("stage", stageStrategy))

	// Everything the prompt embeds is read at stage entry.
	snap := view.Snapshot()

	prompt, err := r.buildStrategyPrompt(snap)
	if err != nil {
		r.strategyFailed(ctx, span, logger, err)
		return
	}

	resp, err := r.gen.Generate(ctx, generator.NewRequest(generator.PurposeStrategy, prompt))
	if err == nil && resp == nil {
		err = generator.ErrEmptyResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.strategyFailed(ctx, span, logger, err)
		return
	}

	raw := strings.TrimSpace(resp.Text)
	r.console.Rule()
	r.console.Stagef("2. Strategy Management Layer: Generated strategy -> \n%s", raw)

	rec, parseErr := strategy.Parse(raw)
	span.SetAttributes(attribute.Bool("strategy.valid", parseErr == nil))

	if parseErr != nil {
		logger.Warn("Strategy is not a valid adjustment", zap.Error(parseErr))
		if r.opts.RequireValidStrategy {
			logger.Warn("Discarding invalid strategy")
			r.record(ctx, blackboard.KindFailure, stageStrategy, fmt.Sprintf("invalid strategy: %v", parseErr))
			return
		}
	}

	view.AppendStrategy(rec)
	logger.Info("Strategy recorded",
		zap.String("model", resp.Model),
		zap.Bool("valid", rec.Valid()),
		zap.Int("strategies", len(snap.PreviousStrategies)+1))
	r.record(ctx, blackboard.KindStrategy, stageStrategy, raw)
}

func (r *run) buildStrategyPrompt(snap Snapshot) (string, error) {
	goal := ""
	if snap.Goal != nil {
		goal = *snap.Goal
	}

	production, err := compactJSON(snap.CurrentProductionData)
	if err != nil {
		return "", fmt.Errorf("failed to encode production data: %w", err)
	}

	previous, err := compactJSON(snap.RawStrategies())
	if err != nil {
		return "", fmt.Errorf("failed to encode previous strategies: %w", err)
	}

	return strategyPrompt(goal, snap.HistoricalAnalysis, production, previous, r.opts.WordLimit), nil
}

func (r *run) strategyFailed(ctx context.Context, span trace.Span, logger *zap.Logger, err error) {
	r.console.StageErrorf("2. Strategy Management Layer: Error occurred -> %v", err)
	logger.Warn("Strategy generation failed", zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.record(ctx, blackboard.KindFailure, stageStrategy, err.Error())
}

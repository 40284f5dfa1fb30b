package cycle

import (
	"context"
	"strings"

	"github.com/dyluth/kiln/internal/generator"
	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/pkg/blackboard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// goalLoop waits for the enactment baton, runs the goal stage and hands the
// baton to the strategy stage. The enactment baton is armed only once, so the
// loop parks on its second iteration until the run ends.
func (r *run) goalLoop(ctx context.Context) error {
	view := r.shared.GoalView()

	for {
		if err := r.ring.EnactmentReady.Wait(ctx); err != nil {
			return nil
		}
		if err := r.transition(stageGoal, StateGoalRunning); err != nil {
			return err
		}

		r.runGoal(ctx, view)

		if !pause(ctx, r.opts.GoalDelay) {
			return nil
		}
		if err := r.transition(stageGoal, StateWaitStrategy); err != nil {
			return err
		}
		r.ring.GoalReady.Arm()
	}
}

func (r *run) runGoal(ctx context.Context, view GoalView) {
	ctx, span := r.tracer.Start(ctx, "cycle.goal", trace.WithAttributes(
		attribute.String("cycle.id", r.id),
		attribute.Int("history.records", len(r.opts.History)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("stage", stageGoal))

	view.SetGoal(r.opts.Goal)
	r.record(ctx, blackboard.KindGoal, stageGoal, r.opts.Goal)

	if len(r.opts.History) == 0 {
		logger.Info("No historical data, skipping analysis")
		span.SetAttributes(attribute.Bool("cycle.analysis_skipped", true))
		return
	}

	historyJSON, err := history.Marshal(r.opts.History)
	if err != nil {
		r.goalFailed(ctx, span, logger, err)
		return
	}

	prompt := analysisPrompt(historyJSON, r.opts.Goal, r.opts.YieldThreshold, r.opts.WordLimit)
	resp, err := r.gen.Generate(ctx, generator.NewRequest(generator.PurposeGoal, prompt))
	if err == nil && resp == nil {
		err = generator.ErrEmptyResponse
	}
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		r.goalFailed(ctx, span, logger, err)
		return
	}

	analysis := strings.TrimSpace(resp.Text)
	view.SetAnalysis(analysis)

	r.console.Rule()
	r.console.Stagef("1. Goal Management Layer: Strategy -> %s", analysis)
	logger.Info("Historical analysis complete", zap.String("model", resp.Model), zap.Int("length", len(analysis)))
	r.record(ctx, blackboard.KindAnalysis, stageGoal, analysis)
}

func (r *run) goalFailed(ctx context.Context, span trace.Span, logger *zap.Logger, err error) {
	r.console.StageErrorf("1. Goal Management Layer: Error occurred -> %v", err)
	logger.Warn("Historical analysis failed", zap.Error(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.record(ctx, blackboard.KindFailure, stageGoal, err.Error())
}

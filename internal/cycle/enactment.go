package cycle

import (
	"context"
	"strings"

	"github.com/dyluth/kiln/pkg/blackboard"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// enact runs once: it waits for the strategy baton, optionally dumps the
// shared context, records the final state and cancels the run. It never arms
// the enactment baton, so the goal stage never starts a second cycle.
func (r *run) enact(ctx context.Context) error {
	if err := r.ring.StrategyReady.Wait(ctx); err != nil {
		return nil
	}
	if err := r.transition(stageEnactment, StateTerminated); err != nil {
		return err
	}

	ctx, span := r.tracer.Start(ctx, "cycle.enact", trace.WithAttributes(attribute.String("cycle.id", r.id)))
	defer span.End()

	logger := r.logger.With(zap.String("stage", stageEnactment))
	snap := r.shared.ReadView().Snapshot()

	if r.opts.Debug {
		var b strings.Builder
		if err := WriteDump(&b, snap); err != nil {
			logger.Warn("Failed to render shared context", zap.Error(err))
		} else {
			r.console.Block(b.String())
		}
	}

	payload, err := compactJSON(snap)
	if err != nil {
		logger.Warn("Failed to encode final snapshot", zap.Error(err))
	}
	r.record(ctx, blackboard.KindTerminal, stageEnactment, payload)

	logger.Debug("Terminating pipeline")
	r.terminate()
	return nil
}

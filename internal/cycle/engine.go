// Package cycle runs one goal -> strategy -> enactment optimization cycle.
//
// Three workers run concurrently and pass a baton around a ring of signals:
// the goal stage analyses historical data, the strategy stage turns that
// analysis into an adjustment, and the enactment stage observes the result
// and shuts the pipeline down. Only the worker holding the baton touches the
// shared context, so exactly one stage runs at a time.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/dyluth/kiln/internal/baton"
	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/generator"
	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/pkg/blackboard"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	stageGoal      = "goal"
	stageStrategy  = "strategy"
	stageEnactment = "enactment"
)

// Options configures a cycle.
type Options struct {
	Goal                 string
	Production           config.ProductionData
	History              []history.Record
	YieldThreshold       float64
	WordLimit            int
	GoalDelay            time.Duration
	StrategyDelay        time.Duration
	Debug                bool
	RequireValidStrategy bool
}

// OptionsFromConfig builds Options from a validated configuration.
func OptionsFromConfig(cfg *config.KilnConfig, records []history.Record) Options {
	return Options{
		Goal:                 cfg.Goal,
		Production:           *cfg.Production,
		History:              records,
		YieldThreshold:       *cfg.Pipeline.YieldThreshold,
		WordLimit:            *cfg.Generator.WordLimit,
		GoalDelay:            *cfg.Pipeline.GoalDelay,
		StrategyDelay:        *cfg.Pipeline.StrategyDelay,
		Debug:                cfg.Pipeline.Debug,
		RequireValidStrategy: cfg.Strategy.RequireValid,
	}
}

// Recorder receives every stage outcome. *blackboard.Client satisfies it.
type Recorder interface {
	CreateArtefact(ctx context.Context, a *blackboard.Artefact) error
}

// Engine runs cycles. It holds no per-run state and may be reused.
type Engine struct {
	opts     Options
	gen      generator.Generator
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	out      io.Writer
	newRing  func() *baton.Ring
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRecorder mirrors each stage outcome to r. Recording failures are logged and ignored.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithTracer records a span per run and per stage.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = t }
}

// WithOutput sends stage narration and the debug dump to w instead of stdout.
func WithOutput(w io.Writer) EngineOption {
	return func(e *Engine) { e.out = w }
}

// New creates an engine.
func New(opts Options, gen generator.Generator, logger *zap.Logger, options ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{
		opts:    opts,
		gen:     gen,
		logger:  logger,
		tracer:  noop.NewTracerProvider().Tracer(""),
		newRing: baton.NewRing,
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// Result describes a finished run.
type Result struct {
	CycleID     string
	State       State
	Transitions []State
	Snapshot    Snapshot
}

// run holds the state of a single Engine.Run call.
type run struct {
	*Engine

	id        string
	shared    *SharedContext
	ring      *baton.Ring
	tracker   *Tracker
	console   *printer.Console
	logger    *zap.Logger
	seq       atomic.Int32
	terminate context.CancelFunc
}

// Run executes exactly one cycle and blocks until every worker has stopped.
// It returns an error only when the cycle did not reach TERMINATED, for
// example because ctx was cancelled first.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	id := uuid.New().String()

	ctx, span := e.tracer.Start(ctx, "cycle.run", trace.WithAttributes(attribute.String("cycle.id", id)))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r := &run{
		Engine:    e,
		id:        id,
		shared:    NewSharedContext(e.opts.Production),
		ring:      e.newRing(),
		tracker:   NewTracker(),
		console:   printer.NewConsole(e.out),
		logger:    e.logger.With(zap.String("cycle_id", id)),
		terminate: cancel,
	}

	r.logger.Info("Starting cycle")

	// The first goal iteration must not wait for an enactment that has not happened.
	r.ring.EnactmentReady.Arm()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return r.goalLoop(gctx) })
	g.Go(func() error { return r.strategyLoop(gctx) })
	g.Go(func() error { return r.enact(gctx) })
	err := g.Wait()

	result := &Result{
		CycleID:     id,
		State:       r.tracker.Current(),
		Transitions: r.tracker.History(),
		Snapshot:    r.shared.ReadView().Snapshot(),
	}
	span.SetAttributes(attribute.String("cycle.state", string(result.State)))

	if err != nil {
		return result, err
	}
	if result.State != StateTerminated {
		cause := ctx.Err()
		if cause == nil {
			cause = errors.New("workers stopped early")
		}
		return result, fmt.Errorf("cycle %s interrupted in state %s: %w", id, result.State, cause)
	}

	r.logger.Info("Cycle terminated", zap.Int("strategies", len(result.Snapshot.PreviousStrategies)))
	return result, nil
}

// record mirrors one stage outcome. Failures never affect the cycle.
func (r *run) record(ctx context.Context, kind blackboard.Kind, stage, payload string) {
	if r.recorder == nil {
		return
	}

	a := &blackboard.Artefact{
		ID:          uuid.New().String(),
		CycleID:     r.id,
		Sequence:    int(r.seq.Add(1)),
		Kind:        kind,
		Stage:       stage,
		Payload:     payload,
		CreatedAtMs: time.Now().UnixMilli(),
	}
	if err := r.recorder.CreateArtefact(ctx, a); err != nil {
		r.logger.Warn("Failed to mirror artefact",
			zap.String("stage", stage),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

// transition moves the tracker and logs the new state.
func (r *run) transition(stage string, to State) error {
	if err := r.tracker.Transition(to); err != nil {
		r.logger.Error("Cycle out of order", zap.String("stage", stage), zap.Error(err))
		return err
	}
	r.logger.Debug("State changed", zap.String("stage", stage), zap.String("state", string(to)))
	return nil
}

// pause sleeps for d, returning false if ctx ends first.
func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

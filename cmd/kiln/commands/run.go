package commands

import (
	"context"
	"io"
	"time"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/cycle"
	"github.com/dyluth/kiln/internal/generator"
	"github.com/dyluth/kiln/internal/history"
	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/internal/telemetry"
	"github.com/dyluth/kiln/pkg/blackboard"
	"go.uber.org/zap"
)

const (
	mirrorConnectTimeout  = 5 * time.Second
	telemetryFlushTimeout = 5 * time.Second
)

// runner wires configuration, collaborators and the cycle engine together.
type runner struct {
	stdout    io.Writer
	getenv    func(string) string
	newLogger func(debug bool) (*zap.Logger, error)
}

func (r *runner) run(ctx context.Context, path string, explicit, debug bool) error {
	cfg, err := config.LoadOrDefault(path, explicit)
	if err != nil {
		return printer.Error(
			"Invalid configuration",
			err.Error(),
			map[string]string{"config": path},
			"Fix kiln.yml, or remove it to run with the built-in defaults",
		)
	}
	if err := cfg.ApplyEnv(r.getenv); err != nil {
		return printer.Error("Invalid environment", err.Error(), nil)
	}
	if debug {
		cfg.Pipeline.Debug = true
	}

	logger, err := r.newLogger(cfg.Pipeline.Debug)
	if err != nil {
		return printer.Error("Failed to initialise logging", err.Error(), nil)
	}
	defer func() { _ = logger.Sync() }()

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		logger.Warn("Tracing disabled", zap.Error(err))
		tel, _ = telemetry.Setup(ctx, nil)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), telemetryFlushTimeout)
		defer cancel()
		if err := tel.Shutdown(flushCtx); err != nil {
			logger.Warn("Failed to flush traces", zap.Error(err))
		}
	}()

	records := history.LoadOrEmpty(cfg.History.Path, logger)

	gen := generator.New(ctx, cfg.Generator, logger)
	gen = generator.WithRetry(gen, generator.RetryPolicy{
		MaxAttempts:     *cfg.Generator.MaxAttempts,
		InitialInterval: *cfg.Generator.InitialInterval,
	}, logger)
	gen = generator.WithTracing(gen, tel.Tracer("kiln/generator"))

	options := []cycle.EngineOption{
		cycle.WithOutput(r.stdout),
		cycle.WithTracer(tel.Tracer("kiln/cycle")),
	}
	if mirror := r.connectMirror(ctx, cfg.Mirror, logger); mirror != nil {
		defer mirror.Close()
		options = append(options, cycle.WithRecorder(mirror))
	}

	engine := cycle.New(cycle.OptionsFromConfig(cfg, records), gen, logger, options...)
	result, err := engine.Run(ctx)
	if err != nil {
		return printer.Error("Cycle interrupted", err.Error(), nil)
	}

	logger.Debug("Cycle finished",
		zap.String("cycle_id", result.CycleID),
		zap.String("state", string(result.State)))
	return nil
}

// connectMirror returns a live blackboard client, or nil when no mirror is
// configured or it cannot be reached. An unreachable mirror never stops the run.
func (r *runner) connectMirror(ctx context.Context, cfg *config.MirrorConfig, logger *zap.Logger) *blackboard.Client {
	if cfg == nil {
		return nil
	}

	client, err := blackboard.NewClientFromURL(cfg.RedisURL, cfg.Instance)
	if err != nil {
		logger.Warn("Mirror disabled", zap.Error(err))
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, mirrorConnectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx); err != nil {
		client.Close()
		logger.Warn("Mirror unreachable, continuing without it",
			zap.String("instance", cfg.Instance),
			zap.Error(err))
		return nil
	}

	logger.Info("Mirroring artefacts", zap.String("instance", cfg.Instance))
	return client
}

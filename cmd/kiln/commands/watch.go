package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/filter"
	"github.com/dyluth/kiln/internal/instance"
	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/internal/resolver"
	"github.com/dyluth/kiln/internal/watch"
	"github.com/dyluth/kiln/pkg/blackboard"
	"github.com/spf13/cobra"
)

var (
	watchRedisURL     string
	watchInstanceName string
	watchOutputFormat string
	watchCycleID      string
	watchFollow       bool
	watchKind         string
	watchStage        string
	watchSince        string
	watchUntil        string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the artefacts a run mirrors to Redis",
	Long: `Follow the goal, analysis, strategy, failure and terminal artefacts that
a kiln run mirrors to its Redis blackboard.

The Redis URL and instance come from the mirror section of kiln.yml, the
REDIS_URL and KILN_INSTANCE environment variables, or the flags below.

Output Formats:
  default - One aligned line per artefact
  jsonl   - Line-delimited JSON for programmatic processing

Examples:
  # Watch the next cycle on the default instance, stop when it terminates
  kiln watch --redis-url redis://localhost:6379

  # Keep watching every cycle on line-3
  kiln watch --name line-3 --follow

  # Replay a finished cycle as JSON (a unique prefix of 6+ characters is enough)
  kiln watch --cycle 0f8fad --output jsonl

  # Only strategies and failures from the strategy stage
  kiln watch --stage strategy --kind '[SF]*'`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRedisURL, "redis-url", "", "Redis URL (overrides config and REDIS_URL)")
	watchCmd.Flags().StringVarP(&watchInstanceName, "name", "n", "", "Instance name (overrides config and KILN_INSTANCE)")
	watchCmd.Flags().StringVarP(&watchOutputFormat, "output", "o", "default", "Output format (default or jsonl)")
	watchCmd.Flags().StringVar(&watchCycleID, "cycle", "", "Replay a recorded cycle (full ID or unique prefix) instead of watching live")
	watchCmd.Flags().BoolVarP(&watchFollow, "follow", "f", false, "Keep watching after a cycle terminates")
	watchCmd.Flags().StringVar(&watchKind, "kind", "", "Only show artefacts whose kind matches this glob (e.g. 'strat*')")
	watchCmd.Flags().StringVar(&watchStage, "stage", "", "Only show artefacts from this stage (goal, strategy or enactment)")
	watchCmd.Flags().StringVar(&watchSince, "since", "", "Only show artefacts created after this time (duration like '1h' or RFC3339)")
	watchCmd.Flags().StringVar(&watchUntil, "until", "", "Only show artefacts created before this time (duration like '1h' or RFC3339)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	format, err := watch.ParseFormat(watchOutputFormat)
	if err != nil {
		return printer.Error("Invalid output format", err.Error(), nil, "Valid formats: default, jsonl")
	}

	sinceMs, untilMs, err := filter.ParseRange(watchSince, watchUntil, time.Now())
	if err != nil {
		return printer.Error("Invalid time range", err.Error(), nil)
	}
	criteria := &filter.Criteria{
		SinceTimestampMs: sinceMs,
		UntilTimestampMs: untilMs,
		KindGlob:         watchKind,
		Stage:            watchStage,
	}

	cfg, err := config.LoadOrDefault(configPath, cmd.Flags().Changed("config"))
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), map[string]string{"config": configPath})
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return printer.Error("Invalid environment", err.Error(), nil)
	}

	mirror := resolveMirror(cfg.Mirror, watchRedisURL, watchInstanceName)
	if mirror == nil {
		return printer.Error(
			"No mirror configured",
			"kiln watch needs the Redis blackboard a run mirrors to.",
			nil,
			"Pass --redis-url redis://host:6379",
			"Set REDIS_URL",
			"Add a mirror section to kiln.yml",
		)
	}

	if err := instance.ValidateName(mirror.Instance); err != nil {
		return printer.Error("Invalid instance name", err.Error(), nil)
	}

	client, err := blackboard.NewClientFromURL(mirror.RedisURL, mirror.Instance)
	if err != nil {
		return printer.Error("Invalid mirror", err.Error(), map[string]string{"redis_url": mirror.RedisURL})
	}
	defer client.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, mirrorConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		return printer.Error(
			"Redis connection failed",
			fmt.Sprintf("Could not connect to Redis: %v", err),
			map[string]string{"redis_url": mirror.RedisURL, "instance": mirror.Instance},
			"Check that Redis is running and reachable",
		)
	}

	out := cmd.OutOrStdout()
	if watchCycleID != "" {
		cycleID, err := resolver.ResolveCycleID(ctx, client, watchCycleID)
		if err != nil {
			var amb *resolver.AmbiguousError
			if errors.As(err, &amb) {
				return printer.Error("Ambiguous cycle ID", err.Error(),
					map[string]string{"matches": amb.Candidates()},
					"Use a longer prefix or the full cycle ID")
			}
			return printer.Error("Cycle not found", err.Error(),
				map[string]string{"instance": mirror.Instance})
		}
		return watch.Replay(ctx, client, cycleID, out, format, criteria)
	}

	start := time.Now()
	if err := watch.Stream(ctx, client, out, format, criteria, !watchFollow); err != nil {
		return printer.Error("Watch failed", err.Error(), nil)
	}
	if format == watch.OutputFormatDefault && ctx.Err() == nil {
		printer.Success(out, "Cycle terminated after %s\n", time.Since(start).Round(time.Second))
	}
	return nil
}

// resolveMirror merges flag overrides over the configured mirror. Returns nil
// when no Redis URL is known.
func resolveMirror(cfg *config.MirrorConfig, redisURL, name string) *config.MirrorConfig {
	resolved := config.MirrorConfig{Instance: instance.DefaultName}
	if cfg != nil {
		resolved = *cfg
	}
	if redisURL != "" {
		resolved.RedisURL = redisURL
	}
	if name != "" {
		resolved.Instance = name
	}
	if resolved.RedisURL == "" {
		return nil
	}
	return &resolved
}

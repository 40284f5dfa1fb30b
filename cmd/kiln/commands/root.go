package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dyluth/kiln/internal/config"
	"github.com/dyluth/kiln/internal/logging"
	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string

	configPath string
	debugFlag  bool
)

// rootCmd runs one optimization cycle when called without a subcommand
var rootCmd = &cobra.Command{
	Use:   "kiln",
	Short: "Kiln - LLM-guided production line optimizer",
	Long: `Kiln runs one goal -> strategy -> enactment optimization cycle for a
production line.

The goal stage asks a text-generation service to analyse historical
production records against the objective. The strategy stage turns that
analysis and the current line readings into a time, temperature and
pressure adjustment. The enactment stage observes the result and stops.

With no kiln.yml the built-in defaults are used. OPENAI_API_KEY (or
GEMINI_API_KEY) must be set for the service calls to succeed; failures are
reported and the cycle still completes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		r := &runner{
			stdout:    cmd.OutOrStdout(),
			getenv:    os.Getenv,
			newLogger: logging.New,
		}
		return r.run(ctx, configPath, cmd.Flags().Changed("config"), debugFlag)
	},
	// Unknown flags are an error
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. It is called once by main.main().
func Execute() error {
	// Errors are printed by the printer package, not by cobra
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.ExecuteContext(context.Background())
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Path to kiln.yml")
	rootCmd.Flags().BoolVar(&debugFlag, "debug", false, "Dump the shared context before terminating")
}

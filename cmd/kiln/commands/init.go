package commands

import (
	"github.com/dyluth/kiln/internal/printer"
	"github.com/dyluth/kiln/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	forceInit bool
	initDir   string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter kiln.yml and sample historical data",
	Long: `Create a starter project in the current directory.

Creates:
  • kiln.yml - Configuration with every option and its default
  • historical_data.json - Sample production records for the goal stage

Use --force to overwrite existing files.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite existing kiln.yml and historical_data.json")
	initCmd.Flags().StringVar(&initDir, "dir", ".", "Directory to initialize")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	created, err := scaffold.Initialize(initDir, forceInit)
	if err != nil {
		return printer.Error("Initialization failed", err.Error(), map[string]string{"dir": initDir})
	}

	scaffold.PrintSuccess(cmd.OutOrStdout(), created)
	return nil
}

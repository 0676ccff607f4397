package cli

import (
	"context"

	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume the active or a specific run",
	Long: `Resume loads a run (the active one by default, or a specific run-id
argument) and continues it from wherever it left off, falling through the
canonical path to completion without replaying already-finished stages.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResume,
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	drv, cfg, err := newDriver(ctx)
	if err != nil {
		return exitWithCode(1, err)
	}

	var runID string
	if len(args) == 1 {
		runID = args[0]
	}

	opts := optionsFromConfig(cfg)

	cleanup := writePID()
	defer cleanup()

	go drainEvents(drv.Events())

	code, err := drv.Resume(ctx, runID, opts)
	return exitWithCode(code, err)
}

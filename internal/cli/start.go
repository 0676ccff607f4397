package cli

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new run",
	Long: `Start verifies authentication and the control-plane connection, refuses
to run if an active run already exists, then drives the task cycle from
auth_config through to completion, pause, or failure, streaming events as
it goes.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().String("agent", "", "agent adapter to use (claude-code, codex, gemini)")
	startCmd.Flags().Bool("auto-approve", false, "auto-approve the agent's proposed changes")
	startCmd.Flags().Bool("create-mr", false, "create a GitLab merge request after each task")
	startCmd.Flags().Bool("continuous", false, "keep fetching and running tasks until none remain")
	startCmd.Flags().Int("max-tasks", 0, "maximum number of tasks to run (0 uses config default)")
	startCmd.Flags().String("dir", "", "working directory (default resolves from the application)")
	startCmd.Flags().String("task-id", "", "run a specific task instead of fetching the next one")
	startCmd.Flags().Bool("skip-verification", false, "skip post-process and test stages")
	startCmd.Flags().Bool("skip-git", false, "skip commit/push")

	_ = viper.BindPFlag("agent.vendor", startCmd.Flags().Lookup("agent"))
	_ = viper.BindPFlag("agent.auto_approve", startCmd.Flags().Lookup("auto-approve"))
	_ = viper.BindPFlag("run.create_merge_request", startCmd.Flags().Lookup("create-mr"))
	_ = viper.BindPFlag("run.continuous", startCmd.Flags().Lookup("continuous"))
	_ = viper.BindPFlag("run.skip_verification", startCmd.Flags().Lookup("skip-verification"))
	_ = viper.BindPFlag("run.skip_git", startCmd.Flags().Lookup("skip-git"))
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	drv, cfg, err := newDriver(ctx)
	if err != nil {
		return exitWithCode(1, err)
	}

	opts := optionsFromConfig(cfg)
	if maxTasks, _ := cmd.Flags().GetInt("max-tasks"); maxTasks > 0 {
		opts.MaxTasks = maxTasks
	}
	opts.Dir, _ = cmd.Flags().GetString("dir")
	opts.TaskID, _ = cmd.Flags().GetString("task-id")

	cleanup := writePID()
	defer cleanup()

	go drainEvents(drv.Events())

	code, err := drv.Start(ctx, opts)
	return exitWithCode(code, err)
}

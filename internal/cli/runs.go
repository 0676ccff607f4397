package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gbos-io/gbos/internal/runstate"
	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long:  `runs lists the most recent runs by reading and deserializing the N newest files from the run store.`,
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)
	runsCmd.Flags().Int("limit", 10, "maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
	dir, err := stateDir()
	if err != nil {
		return exitWithCode(1, err)
	}
	store, err := runstate.NewStore(filepath.Join(dir, "runs"))
	if err != nil {
		return exitWithCode(1, fmt.Errorf("opening run store: %w", err))
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := store.List(limit)
	if err != nil {
		return exitWithCode(1, fmt.Errorf("listing runs: %w", err))
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tSTATE\tTASK\tSAVED")
	for _, run := range runs {
		task := run.Context.TaskKey
		if task == "" {
			task = run.Context.TaskID
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.RunID, run.State, task, humanize.Time(run.SavedAt))
	}
	return w.Flush()
}

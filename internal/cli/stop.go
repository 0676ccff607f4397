package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Request a graceful stop of the running process",
	Long: `Stop reads the PID recorded by the in-progress start/resume process and
sends it an interrupt, the same signal gbos already listens for: the
driver cancels the current stage's context, lets it resolve, and
transitions the run to paused.`,
	RunE: runStop,
}

func init() {
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	path, err := pidFilePath()
	if err != nil {
		return exitWithCode(1, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return exitWithCode(1, fmt.Errorf("no running gbos process found"))
		}
		return exitWithCode(1, fmt.Errorf("reading pid file: %w", err))
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return exitWithCode(1, fmt.Errorf("parsing pid file: %w", err))
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return exitWithCode(1, fmt.Errorf("finding process %d: %w", pid, err))
	}
	if err := proc.Signal(os.Interrupt); err != nil {
		return exitWithCode(1, fmt.Errorf("signaling process %d: %w", pid, err))
	}

	fmt.Printf("sent stop signal to process %d\n", pid)
	return nil
}

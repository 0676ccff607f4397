package cli

import (
	"fmt"
	"os"

	"github.com/gbos-io/gbos/internal/events"
	"github.com/mattn/go-isatty"
)

const (
	colorGreen  = "\x1b[32m"
	colorYellow = "\x1b[33m"
	colorRed    = "\x1b[31m"
	colorCyan   = "\x1b[36m"
	colorReset  = "\x1b[0m"
)

var useColor = isatty.IsTerminal(os.Stdout.Fd())

func colorize(code, s string) string {
	if !useColor {
		return s
	}
	return code + s + colorReset
}

// printEvent renders one driver event as a human-readable line, streaming
// as the run progresses (spec §4.8: "consume driver events to produce
// human-readable output").
func printEvent(e events.Event) {
	switch e.Kind {
	case events.KindStarted:
		fmt.Printf("%s run %s\n", colorize(colorCyan, "started"), e.RunID)
	case events.KindStage:
		fmt.Printf("%s %s\n", colorize(colorCyan, "stage"), e.Stage)
	case events.KindLog:
		fmt.Println(e.Message)
	case events.KindPrompt:
		fmt.Println(colorize(colorYellow, "prompt rendered"))
	case events.KindAgentStart:
		fmt.Printf("%s %s\n", colorize(colorGreen, "agent start"), e.Agent)
	case events.KindAgentOutput:
		fmt.Print(e.Chunk)
	case events.KindAgentDone:
		fmt.Printf("\n%s exit=%d\n", colorize(colorGreen, "agent done"), e.ExitCode)
	case events.KindCommitted:
		fmt.Printf("%s commit=%s mr=%s\n", colorize(colorGreen, "committed"), shortHash(e.CommitHash), e.MergeRequestURL)
	case events.KindCompleted:
		fmt.Printf("%s tasks=%d\n", colorize(colorGreen, "completed"), e.TasksCompleted)
	case events.KindFailed:
		fmt.Printf("%s %s\n", colorize(colorRed, "failed"), e.Error)
	}
}

func shortHash(h string) string {
	if len(h) > 10 {
		return h[:10]
	}
	return h
}

// drainEvents streams the driver's events to stdout. The channel is never
// closed by the driver (see orchestrator.Driver.Events), so this is meant
// to run in a goroutine for the lifetime of the process; it exits along
// with the CLI command once Start/Resume returns and main returns.
func drainEvents(ch <-chan events.Event) {
	for e := range ch {
		printEvent(e)
	}
}

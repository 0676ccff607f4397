// Package agent implements the polymorphic agent-adapter strategy: one
// adapter per supported coding-agent CLI (claude-code, codex, gemini),
// selected by name, each responsible for its own availability probe,
// command assembly, prompt rendering, and output heuristics. The shared
// Agent interface and the alias-to-factory registry are grounded on the
// teacher's internal/agent package; the per-vendor command/prompt/parse
// logic is rewritten against a subprocess contract instead of a Docker
// container image.
package agent

import "fmt"

// Task is the read-only view of the unit of work an adapter formats a
// prompt for (spec §3's Task, as consumed).
type Task struct {
	ID                 string
	TaskKey             string
	Title               string
	Priority            string
	TaskType            string
	Body                string // task body text; the orchestrator builds Task from ID, TaskKey and Title only and leaves Body empty
	AcceptanceCriteria  []string
	TargetFiles         []string
	Attachments         []string
	Metadata            map[string]string
}

// PromptContext carries the run/application facts a rendered prompt draws
// on beyond the task itself.
type PromptContext struct {
	AppName     string
	RepoURL     string
	CloudRunURL string // when set, the rendered prompt includes Playwright testing instructions
	Branch      string
	WorkingDir  string
}

// CommandOptions are the knobs recognized when assembling a command (spec
// §4.3).
type CommandOptions struct {
	AutoApprove bool
	Model       string
	MaxTurns    int
	Quiet       bool
	Verbose     bool
	APIKey      string
}

// CommandSpec is what an adapter hands back for the session runner to
// execute.
type CommandSpec struct {
	Command           string
	Args              []string
	Env               map[string]string
	CloseStdinOnWrite bool
}

// ParsedOutput is the structured result of scanning an agent's accumulated
// output text.
type ParsedOutput struct {
	Raw           string
	FilesModified []string
	TestsRun      []string
	Errors        []string
}

// Agent is the strategy interface every adapter implements.
type Agent interface {
	// Name returns the agent's canonical (non-alias) identifier.
	Name() string

	// IsAvailable reports whether the agent binary is callable on $PATH.
	IsAvailable() bool

	// Version returns a short best-effort version string, or "unknown".
	Version() string

	// Command assembles the subprocess command for one invocation.
	Command(opts CommandOptions) CommandSpec

	// FormatPrompt renders the full prompt text for a task.
	FormatPrompt(task Task, ctx PromptContext) string

	// DetectCompletion reports whether accumulated output signals the
	// agent considers its work done.
	DetectCompletion(output string) bool

	// DetectWaitingForInput reports whether the agent appears to be
	// blocked on additional input.
	DetectWaitingForInput(output string) bool

	// DetectError reports whether accumulated output signals a fatal
	// agent-side error.
	DetectError(output string) bool

	// ParseOutput extracts structured results from accumulated output.
	ParseOutput(output string) ParsedOutput
}

// UnknownAdapterError is returned by Get when no adapter is registered for
// the requested (lower-cased) name or alias.
type UnknownAdapterError struct {
	Name string
}

func (e *UnknownAdapterError) Error() string {
	return fmt.Sprintf("unknown adapter: %s", e.Name)
}

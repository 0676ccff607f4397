// Package gemini adapts Google's Gemini CLI to the agent.Agent strategy
// interface. The flag layout (a single --model flag plus a non-interactive
// auto-approve switch, with the prompt delivered on stdin) is grounded on the
// teacher's aider.Adapter, the closest structural analogue in the teacher
// repo to a third coding-agent CLI binary.
package gemini

import (
	"strings"

	"github.com/gbos-io/gbos/internal/agent"
)

const (
	binary       = "gemini"
	defaultModel = "gemini-2.5-pro"
)

// Adapter implements agent.Agent for the Gemini CLI.
type Adapter struct {
	model string
}

// New creates a Gemini adapter with the default model.
func New() *Adapter {
	return &Adapter{model: defaultModel}
}

func (a *Adapter) Name() string { return "gemini" }

func (a *Adapter) IsAvailable() bool { return agent.IsOnPath(binary) }

func (a *Adapter) Version() string { return agent.ProbeVersion(binary, "--version") }

// Command assembles the gemini CLI invocation. auto_approve maps to
// --yolo, Gemini CLI's equivalent no-confirmation flag.
func (a *Adapter) Command(opts agent.CommandOptions) agent.CommandSpec {
	model := a.model
	if opts.Model != "" {
		model = opts.Model
	}

	args := []string{"--model", model}
	if opts.AutoApprove {
		args = append(args, "--yolo")
	}
	if opts.Quiet {
		args = append(args, "--quiet")
	}

	env := map[string]string{}
	if opts.APIKey != "" {
		env["GEMINI_API_KEY"] = opts.APIKey
	}

	return agent.CommandSpec{
		Command:           binary,
		Args:              args,
		Env:               env,
		CloseStdinOnWrite: false,
	}
}

func (a *Adapter) FormatPrompt(task agent.Task, ctx agent.PromptContext) string {
	return agent.BuildPromptSections(task, ctx)
}

func (a *Adapter) DetectCompletion(output string) bool {
	if strings.Contains(output, "AGENTIUM_STATUS: COMPLETE") {
		return true
	}
	return agent.DefaultHeuristics{}.DetectCompletion(output)
}

func (a *Adapter) DetectWaitingForInput(output string) bool {
	return agent.DefaultHeuristics{}.DetectWaitingForInput(output)
}

func (a *Adapter) DetectError(output string) bool {
	return agent.DefaultHeuristics{}.DetectError(output)
}

func (a *Adapter) ParseOutput(output string) agent.ParsedOutput {
	return agent.DefaultHeuristics{}.ParseOutput(output)
}

func init() {
	agent.Register("gemini", func() agent.Agent { return New() })
	agent.Register("google", func() agent.Agent { return New() })
}

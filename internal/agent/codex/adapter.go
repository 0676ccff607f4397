// Package codex adapts OpenAI's Codex CLI to the agent.Agent strategy
// interface. Flag assembly (exec --json, --yolo for auto-approve, -c
// max_turns=...) is grounded on the teacher's codex.Adapter.
package codex

import (
	"fmt"
	"strings"

	"github.com/gbos-io/gbos/internal/agent"
)

const binary = "codex"

// Adapter implements agent.Agent for Codex CLI.
type Adapter struct{}

// New creates a Codex adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return "codex" }

func (a *Adapter) IsAvailable() bool { return agent.IsOnPath(binary) }

func (a *Adapter) Version() string { return agent.ProbeVersion(binary, "--version") }

// Command assembles the codex exec invocation. auto_approve maps to
// --yolo (Codex's non-interactive, no-confirmation mode); max_turns is
// passed through as a reasoning-loop config override.
func (a *Adapter) Command(opts agent.CommandOptions) agent.CommandSpec {
	args := []string{"exec", "--json", "--skip-git-repo-check"}
	if opts.AutoApprove {
		args = append(args, "--yolo")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "-c", fmt.Sprintf("max_turns=%d", opts.MaxTurns))
	}

	env := map[string]string{}
	if opts.APIKey != "" {
		env["OPENAI_API_KEY"] = opts.APIKey
	}

	return agent.CommandSpec{
		Command:           binary,
		Args:              args,
		Env:               env,
		CloseStdinOnWrite: true,
	}
}

func (a *Adapter) FormatPrompt(task agent.Task, ctx agent.PromptContext) string {
	return agent.BuildPromptSections(task, ctx)
}

func (a *Adapter) DetectCompletion(output string) bool {
	if strings.Contains(output, `"type":"turn.completed"`) || strings.Contains(output, "AGENTIUM_STATUS: COMPLETE") {
		return true
	}
	return agent.DefaultHeuristics{}.DetectCompletion(output)
}

func (a *Adapter) DetectWaitingForInput(output string) bool {
	return agent.DefaultHeuristics{}.DetectWaitingForInput(output)
}

func (a *Adapter) DetectError(output string) bool {
	if strings.Contains(output, `"type":"error"`) {
		return true
	}
	return agent.DefaultHeuristics{}.DetectError(output)
}

func (a *Adapter) ParseOutput(output string) agent.ParsedOutput {
	return agent.DefaultHeuristics{}.ParseOutput(output)
}

func init() {
	agent.Register("codex", func() agent.Agent { return New() })
	agent.Register("openai", func() agent.Agent { return New() })
}

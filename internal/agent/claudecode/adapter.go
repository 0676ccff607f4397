// Package claudecode adapts Anthropic's Claude Code CLI to the agent.Agent
// strategy interface. Command assembly is grounded on the teacher's
// claudecode.Adapter.BuildCommand (the --print/--output-format stream-json/
// --dangerously-skip-permissions flag set); ParseOutput reuses the
// teacher's stream.go NDJSON parser to pull tool-use and text content out
// of the stream-json transcript instead of scanning raw text.
package claudecode

import (
	"encoding/json"
	"strings"

	"github.com/gbos-io/gbos/internal/agent"
)

const binary = "claude"

// Adapter implements agent.Agent for Claude Code.
type Adapter struct{}

// New creates a Claude Code adapter.
func New() *Adapter {
	return &Adapter{}
}

func (a *Adapter) Name() string { return "claude-code" }

func (a *Adapter) IsAvailable() bool { return agent.IsOnPath(binary) }

func (a *Adapter) Version() string { return agent.ProbeVersion(binary, "--version") }

// Command assembles the claude CLI invocation. auto_approve maps to
// --dangerously-skip-permissions; the prompt is delivered on stdin so the
// non-interactive --print path never depends on a TTY for argument length.
func (a *Adapter) Command(opts agent.CommandOptions) agent.CommandSpec {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}
	if opts.AutoApprove {
		args = append(args, "--dangerously-skip-permissions")
	}
	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}

	env := map[string]string{}
	if opts.APIKey != "" {
		env["ANTHROPIC_API_KEY"] = opts.APIKey
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
	if strings.Contains(output, "AGENTIUM_STATUS: COMPLETE") || strings.Contains(output, "AGENTIUM_STATUS: TESTS_PASSED") {
		return true
	}
	return agent.DefaultHeuristics{}.DetectCompletion(output)
}

func (a *Adapter) DetectWaitingForInput(output string) bool {
	return agent.DefaultHeuristics{}.DetectWaitingForInput(output)
}

func (a *Adapter) DetectError(output string) bool {
	if strings.Contains(output, "AGENTIUM_STATUS: FAILED") {
		return true
	}
	return agent.DefaultHeuristics{}.DetectError(output)
}

// ParseOutput prefers the stream-json transcript (tool_use blocks name the
// files an Edit/Write tool touched and the commands a Bash tool ran) and
// falls back to the shared regex heuristics for plain-text output, e.g.
// when the adapter was invoked without --output-format stream-json.
func (a *Adapter) ParseOutput(output string) agent.ParsedOutput {
	parsed := ParseStreamJSON([]byte(output))
	if len(parsed.Events) == 0 {
		return agent.DefaultHeuristics{}.ParseOutput(output)
	}

	result := agent.ParsedOutput{Raw: parsed.TextContent}
	for _, evt := range parsed.Events {
		if evt.Subtype != BlockToolUse {
			continue
		}
		switch evt.ToolName {
		case "Write", "Edit", "NotebookEdit":
			if path := toolInputString(evt.ToolInput, "file_path"); path != "" {
				result.FilesModified = appendUnique(result.FilesModified, path)
			}
		case "Bash":
			if cmd := toolInputString(evt.ToolInput, "command"); cmd != "" && looksLikeTestCommand(cmd) {
				result.TestsRun = appendUnique(result.TestsRun, cmd)
			}
		}
	}

	fromText := agent.DefaultHeuristics{}.ParseOutput(parsed.TextContent)
	for _, e := range fromText.Errors {
		result.Errors = appendUnique(result.Errors, e)
	}
	return result
}

func appendUnique(list []string, item string) []string {
	for _, existing := range list {
		if existing == item {
			return list
		}
	}
	return append(list, item)
}

func toolInputString(raw json.RawMessage, field string) string {
	if len(raw) == 0 {
		return ""
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return ""
	}
	s, _ := m[field].(string)
	return s
}

func looksLikeTestCommand(cmd string) bool {
	for _, marker := range []string{"test", "jest", "pytest", "vitest", "go test"} {
		if strings.Contains(strings.ToLower(cmd), marker) {
			return true
		}
	}
	return false
}

func init() {
	agent.Register("claude-code", func() agent.Agent { return New() })
	agent.Register("claude", func() agent.Agent { return New() })
}

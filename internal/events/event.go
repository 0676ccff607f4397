// Package events defines the driver's typed event channel. It replaces
// the teacher's inheritance-based AgentEvent/adapter-event-conversion
// design (internal/events.AgentEvent plus per-vendor FromClaudeCode/
// FromCodex converters) with a single sum-type-shaped Event carrying one
// of the variants spec §9 names, published immutably by the driver and
// consumed by the CLI layer and the JSONL sink below.
package events

import "time"

// Kind identifies which variant of Event is populated.
type Kind string

const (
	KindStarted     Kind = "started"
	KindStage       Kind = "stage"
	KindLog         Kind = "log"
	KindPrompt      Kind = "prompt"
	KindAgentStart  Kind = "agent_start"
	KindAgentOutput Kind = "agent_output"
	KindAgentDone   Kind = "agent_done"
	KindCommitted   Kind = "committed"
	KindCompleted   Kind = "completed"
	KindFailed      Kind = "failed"
)

// Event is an immutable value published on the driver's event channel.
// Exactly the fields relevant to Kind are populated; this mirrors a sum
// type in a language that has one, at the cost of unused fields per
// variant, which is the trade-off a struct-of-variants makes in Go.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	RunID string `json:"run_id,omitempty"`

	Stage string `json:"stage,omitempty"`

	Message string `json:"message,omitempty"`

	Prompt string `json:"prompt,omitempty"`

	Agent string `json:"agent,omitempty"`

	Chunk  string `json:"chunk,omitempty"`
	Stream string `json:"stream,omitempty"`

	ExitCode int `json:"exit_code,omitempty"`

	CommitHash      string `json:"commit_hash,omitempty"`
	MergeRequestURL string `json:"merge_request_url,omitempty"`

	TasksCompleted int `json:"tasks_completed,omitempty"`

	Error string `json:"error,omitempty"`
}

func Started(runID string) Event {
	return Event{Kind: KindStarted, Timestamp: time.Now(), RunID: runID}
}

func Stage(stage string) Event {
	return Event{Kind: KindStage, Timestamp: time.Now(), Stage: stage}
}

func Log(message string) Event {
	return Event{Kind: KindLog, Timestamp: time.Now(), Message: message}
}

func Prompt(text string) Event {
	return Event{Kind: KindPrompt, Timestamp: time.Now(), Prompt: text}
}

func AgentStart(agent string) Event {
	return Event{Kind: KindAgentStart, Timestamp: time.Now(), Agent: agent}
}

func AgentOutput(chunk, stream string) Event {
	return Event{Kind: KindAgentOutput, Timestamp: time.Now(), Chunk: chunk, Stream: stream}
}

func AgentDone(exitCode int) Event {
	return Event{Kind: KindAgentDone, Timestamp: time.Now(), ExitCode: exitCode}
}

func Committed(commitHash, mergeRequestURL string) Event {
	return Event{Kind: KindCommitted, Timestamp: time.Now(), CommitHash: commitHash, MergeRequestURL: mergeRequestURL}
}

func Completed(tasksCompleted int) Event {
	return Event{Kind: KindCompleted, Timestamp: time.Now(), TasksCompleted: tasksCompleted}
}

func Failed(err error) Event {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Event{Kind: KindFailed, Timestamp: time.Now(), Error: msg}
}

package events

import (
	"errors"
	"testing"
)

func TestConstructorsSetExpectedKindAndFields(t *testing.T) {
	if e := Started("run-1"); e.Kind != KindStarted || e.RunID != "run-1" {
		t.Errorf("Started: %+v", e)
	}
	if e := Stage("fetch_task"); e.Kind != KindStage || e.Stage != "fetch_task" {
		t.Errorf("Stage: %+v", e)
	}
	if e := AgentDone(1); e.Kind != KindAgentDone || e.ExitCode != 1 {
		t.Errorf("AgentDone: %+v", e)
	}
	if e := Committed("abc123", "https://example.com/mr/1"); e.CommitHash != "abc123" || e.MergeRequestURL == "" {
		t.Errorf("Committed: %+v", e)
	}
	if e := Completed(3); e.Kind != KindCompleted || e.TasksCompleted != 3 {
		t.Errorf("Completed: %+v", e)
	}
}

func TestFailedCapturesErrorMessage(t *testing.T) {
	e := Failed(errors.New("boom"))
	if e.Error != "boom" {
		t.Errorf("got %q", e.Error)
	}
}

func TestFailedHandlesNilError(t *testing.T) {
	e := Failed(nil)
	if e.Error != "" {
		t.Errorf("got %q, want empty string", e.Error)
	}
}

package runstate

import (
	"testing"
	"time"
)

func TestTransitionSequenceAppendsStages(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	run, err := store.New(now)
	if err != nil {
		t.Fatal(err)
	}

	sequence := []State{StateAuthConfig, StateWorkspaceReady, StateFetchTask, StateCompleted}
	for i, to := range sequence {
		if err := store.Transition(run, to, nil, now.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("transition %d (%s): %v", i, to, err)
		}
	}

	if len(run.Context.Stages) != len(sequence) {
		t.Fatalf("expected %d stages, got %d", len(sequence), len(run.Context.Stages))
	}
	if run.Context.Stages[len(run.Context.Stages)-1].ToState != run.State {
		t.Fatalf("last stage to_state %q does not match run state %q",
			run.Context.Stages[len(run.Context.Stages)-1].ToState, run.State)
	}
	if run.State != StateCompleted {
		t.Fatalf("expected completed, got %s", run.State)
	}
	if run.Context.EndTime == nil {
		t.Fatal("expected end_time to be set for terminal state")
	}
}

func TestInvalidTransitionDoesNotMutate(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	run, err := store.New(now)
	if err != nil {
		t.Fatal(err)
	}

	before := run.State
	beforeStages := len(run.Context.Stages)

	err = store.Transition(run, StateRunAgent, nil, now)
	if err == nil {
		t.Fatal("expected InvalidTransitionError")
	}
	if _, ok := err.(*InvalidTransitionError); !ok {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if run.State != before {
		t.Fatalf("state mutated on invalid transition: %s", run.State)
	}
	if len(run.Context.Stages) != beforeStages {
		t.Fatal("stages mutated on invalid transition")
	}

	reloaded, err := store.Load(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.State != before {
		t.Fatalf("persisted state changed on invalid transition: %s", reloaded.State)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	run, err := store.New(now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Transition(run, StateAuthConfig, map[string]interface{}{
		"app_id": "app-1", "node_id": "node-1",
	}, now); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordOutput(run, "auth_config", map[string]interface{}{"ok": true}, now); err != nil {
		t.Fatal(err)
	}

	reloaded, err := store.Load(run.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Context.AppID != "app-1" || reloaded.Context.NodeID != "node-1" {
		t.Fatalf("context fields did not round-trip: %+v", reloaded.Context)
	}
	if _, ok := reloaded.Context.Outputs["auth_config"]; !ok {
		t.Fatal("expected output for auth_config to round-trip")
	}
}

func TestActiveRunReturnsOnlyNonTerminal(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()

	active, err := store.ActiveRun()
	if err != nil {
		t.Fatal(err)
	}
	if active != nil {
		t.Fatal("expected no active run in an empty store")
	}

	done, err := store.New(now)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Transition(done, StateAuthConfig, nil, now); err != nil {
		t.Fatal(err)
	}
	if err := store.Transition(done, StateFailed, nil, now); err != nil {
		t.Fatal(err)
	}

	time.Sleep(2 * time.Millisecond)
	pending, err := store.New(now.Add(time.Millisecond))
	if err != nil {
		t.Fatal(err)
	}

	active, err = store.ActiveRun()
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.RunID != pending.RunID {
		t.Fatalf("expected active run %s, got %v", pending.RunID, active)
	}
}

func TestRunNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	_, err = store.Load("does-not-exist")
	if _, ok := err.(*RunNotFoundError); !ok {
		t.Fatalf("expected *RunNotFoundError, got %v", err)
	}
}

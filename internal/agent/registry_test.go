package agent

import "testing"

// mockAgent implements Agent for testing.
type mockAgent struct {
	name string
}

func (m *mockAgent) Name() string                 { return m.name }
func (m *mockAgent) IsAvailable() bool             { return true }
func (m *mockAgent) Version() string               { return "mock" }
func (m *mockAgent) Command(CommandOptions) CommandSpec {
	return CommandSpec{Command: m.name}
}
func (m *mockAgent) FormatPrompt(Task, PromptContext) string { return "" }
func (m *mockAgent) DetectCompletion(string) bool            { return false }
func (m *mockAgent) DetectWaitingForInput(string) bool       { return false }
func (m *mockAgent) DetectError(string) bool                 { return false }
func (m *mockAgent) ParseOutput(string) ParsedOutput         { return ParsedOutput{} }

func withCleanRegistry(t *testing.T) {
	t.Helper()
	original := make(map[string]func() Agent)
	for k, v := range registry {
		original[k] = v
	}
	t.Cleanup(func() { registry = original })
	registry = make(map[string]func() Agent)
}

func TestRegister(t *testing.T) {
	withCleanRegistry(t)

	Register("test-agent", func() Agent {
		return &mockAgent{name: "test-agent"}
	})

	if !Exists("test-agent") {
		t.Error("Register() failed to register agent")
	}
	if !Exists("TEST-AGENT") {
		t.Error("Exists() should be case-insensitive")
	}

	a, err := Get("Test-Agent")
	if err != nil {
		t.Errorf("Get() returned error: %v", err)
	}
	if a.Name() != "test-agent" {
		t.Errorf("Get() returned agent with name %q, want %q", a.Name(), "test-agent")
	}
}

func TestGetNotFound(t *testing.T) {
	_, err := Get("nonexistent-agent")
	if err == nil {
		t.Fatal("Get() expected error for nonexistent agent, got nil")
	}
	if _, ok := err.(*UnknownAdapterError); !ok {
		t.Fatalf("expected *UnknownAdapterError, got %T", err)
	}
}

func TestExists(t *testing.T) {
	withCleanRegistry(t)

	if Exists("not-registered") {
		t.Error("Exists() returned true for unregistered agent")
	}

	Register("registered-agent", func() Agent {
		return &mockAgent{name: "registered-agent"}
	})

	if !Exists("registered-agent") {
		t.Error("Exists() returned false for registered agent")
	}
}

func TestList(t *testing.T) {
	withCleanRegistry(t)

	if agents := List(); len(agents) != 0 {
		t.Errorf("List() returned %d agents, want 0", len(agents))
	}

	Register("agent1", func() Agent { return &mockAgent{name: "agent1"} })
	Register("agent2", func() Agent { return &mockAgent{name: "agent2"} })

	agents := List()
	if len(agents) != 2 {
		t.Errorf("List() returned %d agents, want 2", len(agents))
	}

	found := make(map[string]bool)
	for _, name := range agents {
		found[name] = true
	}
	if !found["agent1"] || !found["agent2"] {
		t.Errorf("List() = %v, want [agent1, agent2]", agents)
	}
}

func TestRegisterOverwrite(t *testing.T) {
	withCleanRegistry(t)

	Register("overwrite-test", func() Agent {
		return &mockAgent{name: "original"}
	})

	a1, _ := Get("overwrite-test")
	if a1.Name() != "original" {
		t.Errorf("first registration returned %q, want %q", a1.Name(), "original")
	}

	Register("overwrite-test", func() Agent {
		return &mockAgent{name: "overwritten"}
	})

	a2, _ := Get("overwrite-test")
	if a2.Name() != "overwritten" {
		t.Errorf("after overwrite, got %q, want %q", a2.Name(), "overwritten")
	}
}

package agent

import (
	"strings"
	"testing"
)

func TestDefaultHeuristicsDetectCompletion(t *testing.T) {
	h := DefaultHeuristics{}
	if !h.DetectCompletion("All tests passed.\ndone.") {
		t.Fatal("expected completion to be detected")
	}
	if h.DetectCompletion("still working on it") {
		t.Fatal("did not expect completion to be detected")
	}
}

func TestDefaultHeuristicsDetectWaitingForInput(t *testing.T) {
	h := DefaultHeuristics{}
	if !h.DetectWaitingForInput("Waiting for user input before proceeding") {
		t.Fatal("expected waiting-for-input to be detected")
	}
}

func TestDefaultHeuristicsDetectError(t *testing.T) {
	h := DefaultHeuristics{}
	if !h.DetectError("fatal: authentication failed") {
		t.Fatal("expected error to be detected")
	}
}

func TestDefaultHeuristicsParseOutput(t *testing.T) {
	h := DefaultHeuristics{}
	out := h.ParseOutput("Modified: internal/foo.go\nRunning tests: go test ./...\nerror: build failed\n")
	if len(out.FilesModified) != 1 || out.FilesModified[0] != "internal/foo.go" {
		t.Fatalf("expected one modified file, got %v", out.FilesModified)
	}
	if len(out.TestsRun) != 1 {
		t.Fatalf("expected one test run entry, got %v", out.TestsRun)
	}
	if len(out.Errors) != 1 {
		t.Fatalf("expected one error entry, got %v", out.Errors)
	}
}

func TestBuildPromptSectionsIncludesPlaywrightWhenCloudRunURLSet(t *testing.T) {
	task := Task{Title: "Fix bug", Body: "Do the thing"}
	withURL := BuildPromptSections(task, PromptContext{CloudRunURL: "https://preview.example.com"})
	if !strings.Contains(withURL, "Playwright") {
		t.Fatal("expected Playwright instructions when cloud_run_url is set")
	}

	withoutURL := BuildPromptSections(task, PromptContext{})
	if strings.Contains(withoutURL, "Playwright") {
		t.Fatal("did not expect Playwright instructions when cloud_run_url is unset")
	}
	if !strings.Contains(withoutURL, "Do not commit or push") {
		t.Fatal("expected the completion section to forbid committing or pushing")
	}
}

package codex

import (
	"testing"

	"github.com/gbos-io/gbos/internal/agent"
)

func TestCommandYoloFlag(t *testing.T) {
	a := New()
	spec := a.Command(agent.CommandOptions{AutoApprove: true})
	if !hasArg(spec.Args, "--yolo") {
		t.Fatalf("expected --yolo flag, got %v", spec.Args)
	}
}

func TestCommandWithoutAutoApproveOmitsYolo(t *testing.T) {
	a := New()
	spec := a.Command(agent.CommandOptions{})
	if hasArg(spec.Args, "--yolo") {
		t.Fatalf("did not expect --yolo flag, got %v", spec.Args)
	}
}

func TestDetectErrorViaJSONEventType(t *testing.T) {
	a := New()
	if !a.DetectError(`{"type":"error","message":"rate limited"}`) {
		t.Fatal("expected a codex error event to be detected")
	}
}

func hasArg(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

package events

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFileSink(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "events-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	t.Run("create and write events", func(t *testing.T) {
		sink, err := NewFileSink(tmpDir)
		if err != nil {
			t.Fatalf("failed to create file sink: %v", err)
		}

		expectedPath := filepath.Join(tmpDir, DefaultFilename)
		if sink.Path() != expectedPath {
			t.Errorf("Path() = %q, want %q", sink.Path(), expectedPath)
		}

		evs := []Event{
			Started("run-1"),
			AgentOutput("hello world", "stdout"),
		}

		if err := sink.Write(evs); err != nil {
			t.Fatalf("failed to write events: %v", err)
		}
		if err := sink.Close(); err != nil {
			t.Fatalf("failed to close sink: %v", err)
		}

		readEvents, err := ReadEvents(sink.Path())
		if err != nil {
			t.Fatalf("failed to read events: %v", err)
		}

		if len(readEvents) != 2 {
			t.Fatalf("expected 2 events, got %d", len(readEvents))
		}
		if readEvents[0].Kind != KindStarted {
			t.Errorf("event[0].Kind = %q, want %q", readEvents[0].Kind, KindStarted)
		}
		if readEvents[1].Kind != KindAgentOutput {
			t.Errorf("event[1].Kind = %q, want %q", readEvents[1].Kind, KindAgentOutput)
		}
	})

	t.Run("append mode", func(t *testing.T) {
		dir, err := os.MkdirTemp("", "events-append-*")
		if err != nil {
			t.Fatalf("failed to create temp dir: %v", err)
		}
		defer os.RemoveAll(dir)

		sink1, _ := NewFileSink(dir)
		_ = sink1.WriteOne(Log("first"))
		_ = sink1.Close()

		sink2, _ := NewFileSink(dir)
		_ = sink2.WriteOne(Log("second"))
		_ = sink2.Close()

		evs, _ := ReadEvents(filepath.Join(dir, DefaultFilename))
		if len(evs) != 2 {
			t.Errorf("expected 2 events after append, got %d", len(evs))
		}
	})

	t.Run("write empty slice", func(t *testing.T) {
		dir, _ := os.MkdirTemp("", "events-empty-*")
		defer os.RemoveAll(dir)

		sink, _ := NewFileSink(dir)
		defer sink.Close()

		if err := sink.Write([]Event{}); err != nil {
			t.Errorf("Write([]) returned error: %v", err)
		}
	})

	t.Run("double close", func(t *testing.T) {
		dir, _ := os.MkdirTemp("", "events-double-*")
		defer os.RemoveAll(dir)

		sink, _ := NewFileSink(dir)
		_ = sink.Close()

		if err := sink.Close(); err != nil {
			t.Errorf("second Close() returned error: %v", err)
		}
	})
}

func TestFilterByType(t *testing.T) {
	evs := []Event{
		Log("text1"),
		Stage("planning"),
		AgentStart("claude-code"),
		Log("text2"),
		Failed(nil),
	}

	t.Run("filter single kind", func(t *testing.T) {
		result := FilterByType(evs, KindLog)
		if len(result) != 2 {
			t.Errorf("expected 2 log events, got %d", len(result))
		}
	})

	t.Run("filter multiple kinds", func(t *testing.T) {
		result := FilterByType(evs, KindLog, KindStage)
		if len(result) != 3 {
			t.Errorf("expected 3 events, got %d", len(result))
		}
	})

	t.Run("filter no kinds returns all", func(t *testing.T) {
		result := FilterByType(evs)
		if len(result) != len(evs) {
			t.Errorf("expected %d events, got %d", len(evs), len(result))
		}
	})

	t.Run("filter non-existent kind", func(t *testing.T) {
		result := FilterByType(evs, KindCompleted)
		if len(result) != 0 {
			t.Errorf("expected 0 events, got %d", len(result))
		}
	})
}

func TestReadEventsInvalidFile(t *testing.T) {
	t.Run("non-existent file", func(t *testing.T) {
		_, err := ReadEvents("/non/existent/file.jsonl")
		if err == nil {
			t.Error("expected error for non-existent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpFile, _ := os.CreateTemp("", "invalid-*.jsonl")
		_, _ = tmpFile.WriteString("not valid json\n")
		_ = tmpFile.Close()
		defer os.Remove(tmpFile.Name())

		_, err := ReadEvents(tmpFile.Name())
		if err == nil {
			t.Error("expected error for invalid JSON")
		}
	})
}

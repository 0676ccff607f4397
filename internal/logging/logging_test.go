package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerWritesNewlineDelimitedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "run-1", map[string]string{"task": "T1"})
	l.Info("hello")
	l.Warning("careful")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}

	var entry Entry
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Severity != SeverityInfo || entry.Message != "hello" || entry.RunID != "run-1" {
		t.Fatalf("got %+v", entry)
	}
	if entry.Labels["task"] != "T1" {
		t.Fatalf("expected custom label to be merged, got %+v", entry.Labels)
	}
}

func TestJSONLoggerErrorSeverity(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "run-1", nil)
	l.Error("boom")

	var entry Entry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Severity != SeverityError {
		t.Fatalf("got severity %q", entry.Severity)
	}
}

func TestRedactMasksBearerToken(t *testing.T) {
	if got := Redact("Bearer abc123"); got != "Bearer [REDACTED]" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactMasksGitLabToken(t *testing.T) {
	if got := Redact("glpat-abcdef123456"); got != "[REDACTED_GITLAB_TOKEN]" {
		t.Fatalf("got %q", got)
	}
}

func TestRedactLeavesOrdinaryStringsAlone(t *testing.T) {
	if got := Redact("hello world"); got != "hello world" {
		t.Fatalf("got %q", got)
	}
}

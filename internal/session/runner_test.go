package session

import (
	"context"
	"strings"
	"testing"
	"time"
)

func collectEvents(t *testing.T, s *Session) []Event {
	t.Helper()
	var events []Event
	for e := range s.Events() {
		events = append(events, e)
	}
	return events
}

func TestStartCapturesStdoutAndExit(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo hello"},
	}, Options{LogToFile: true, LogDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}

	events := collectEvents(t, s)
	result, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if result.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Fatalf("expected output to contain hello, got %q", result.Output)
	}

	var sawStarted, sawExit bool
	for _, e := range events {
		switch e.Kind {
		case EventStarted:
			sawStarted = true
			if e.PID == 0 {
				t.Fatal("expected nonzero pid on started event")
			}
		case EventExit:
			sawExit = true
			if e.ExitCode != 0 {
				t.Fatalf("expected exit event code 0, got %d", e.ExitCode)
			}
		}
	}
	if !sawStarted || !sawExit {
		t.Fatalf("expected started and exit events, got %+v", events)
	}
}

func TestNonZeroExitWithoutRetries(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 3"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for range s.Events() {
	}
	result, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
}

func TestRetryOnNonZeroExit(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "exit 1"},
	}, Options{Retries: 2})
	if err != nil {
		t.Fatal(err)
	}

	retryCount := 0
	exitCount := 0
	for e := range s.Events() {
		switch e.Kind {
		case EventRetry:
			retryCount++
		case EventExit:
			exitCount++
		}
	}
	if retryCount != 2 {
		t.Fatalf("expected 2 retry events, got %d", retryCount)
	}
	if exitCount != 3 {
		t.Fatalf("expected 3 exit events (1 initial + 2 retries), got %d", exitCount)
	}

	result, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if result.ExitCode != 1 {
		t.Fatalf("expected final exit code 1, got %d", result.ExitCode)
	}
}

func TestTimeoutKillsChild(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 5"},
	}, Options{TimeoutMS: 100})
	if err != nil {
		t.Fatal(err)
	}

	sawTimeout := false
	for e := range s.Events() {
		if e.Kind == EventTimeout {
			sawTimeout = true
		}
	}
	if !sawTimeout {
		t.Fatal("expected a timeout event")
	}

	result, waitErr := s.Wait()
	if waitErr != nil {
		t.Fatal(waitErr)
	}
	if result.ExitCode == 0 {
		t.Fatal("expected nonzero exit code after timeout kill")
	}
}

func TestWriteStdinDeliversPrompt(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "cat",
		Input:   "hello-stdin",
	}, Options{CloseStdinOnWrite: true})
	if err != nil {
		t.Fatal(err)
	}
	for range s.Events() {
	}
	result, err := s.Wait()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(result.Output, "hello-stdin") {
		t.Fatalf("expected output to contain the piped prompt, got %q", result.Output)
	}
}

func TestStopIsIdempotent(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "sleep 5"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}

	for range s.Events() {
	}
	if _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestWriteAfterExitReturnsNotRunning(t *testing.T) {
	r := New()
	s, err := r.Start(context.Background(), Spec{
		Command: "sh",
		Args:    []string{"-c", "echo done"},
	}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	for range s.Events() {
	}
	if _, err := s.Wait(); err != nil {
		t.Fatal(err)
	}
	if err := s.Write([]byte("x")); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

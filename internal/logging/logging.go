// Package logging provides structured logging for the driver and its
// session runs. It generalizes the teacher's internal/cloud/gcp logger
// pair (CloudLogger/FallbackLogger behind a shared LoggerInterface, a
// Severity enum, the "structured JSON on stdout/stderr" output format)
// into a vendor-neutral logger that never requires live GCP credentials,
// with an optional cloud.google.com/go/logging-backed implementation for
// environments that configure one.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	gcplogging "cloud.google.com/go/logging"
)

// Severity levels for structured logs.
type Severity string

const (
	SeverityDefault  Severity = "DEFAULT"
	SeverityDebug    Severity = "DEBUG"
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Entry is a single structured log record.
type Entry struct {
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	RunID     string                 `json:"run_id,omitempty"`
	Labels    map[string]string      `json:"labels,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger is the structured logging interface the orchestrator and its
// components log through.
type Logger interface {
	Log(severity Severity, message string, fields map[string]interface{})
	Info(message string)
	Warning(message string)
	Error(message string)
	Close() error
}

// JSONLogger writes newline-delimited JSON log entries to a writer. It
// backs both the "local" and "GCP unavailable" cases, since the wire
// format is identical; only the destination writer differs.
type JSONLogger struct {
	writer io.Writer
	runID  string
	labels map[string]string
	mu     sync.Mutex
}

// NewJSONLogger creates a JSONLogger writing to w.
func NewJSONLogger(w io.Writer, runID string, labels map[string]string) *JSONLogger {
	merged := map[string]string{"run_id": runID, "component": "gbos"}
	for k, v := range labels {
		merged[k] = v
	}
	return &JSONLogger{writer: w, runID: runID, labels: merged}
}

// Log writes a structured log entry.
func (l *JSONLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
		RunID:     l.runID,
		Labels:    l.labels,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(l.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *JSONLogger) Info(message string)    { l.Log(SeverityInfo, message, nil) }
func (l *JSONLogger) Warning(message string) { l.Log(SeverityWarning, message, nil) }
func (l *JSONLogger) Error(message string)   { l.Log(SeverityError, message, nil) }
func (l *JSONLogger) Close() error           { return nil }

// GCPLogger writes entries to Cloud Logging via cloud.google.com/go/logging.
type GCPLogger struct {
	client *gcplogging.Client
	logger *gcplogging.Logger
	runID  string
	labels map[string]string
	mu     sync.Mutex
}

// NewGCPLogger creates a GCPLogger for the given project and log ID.
func NewGCPLogger(ctx context.Context, projectID, logID, runID string, labels map[string]string) (*GCPLogger, error) {
	client, err := gcplogging.NewClient(ctx, "projects/"+projectID)
	if err != nil {
		return nil, fmt.Errorf("creating cloud logging client: %w", err)
	}
	merged := map[string]string{"run_id": runID, "component": "gbos"}
	for k, v := range labels {
		merged[k] = v
	}
	return &GCPLogger{client: client, logger: client.Logger(logID), runID: runID, labels: merged}, nil
}

func (l *GCPLogger) Log(severity Severity, message string, fields map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.logger.Log(gcplogging.Entry{
		Severity: severityToGCP(severity),
		Payload: Entry{
			Message: message,
			RunID:   l.runID,
			Labels:  l.labels,
			Fields:  fields,
		},
		Labels: l.labels,
	})
}

func (l *GCPLogger) Info(message string)    { l.Log(SeverityInfo, message, nil) }
func (l *GCPLogger) Warning(message string) { l.Log(SeverityWarning, message, nil) }
func (l *GCPLogger) Error(message string)   { l.Log(SeverityError, message, nil) }
func (l *GCPLogger) Close() error           { return l.client.Close() }

func severityToGCP(s Severity) gcplogging.Severity {
	switch s {
	case SeverityDebug:
		return gcplogging.Debug
	case SeverityWarning:
		return gcplogging.Warning
	case SeverityError:
		return gcplogging.Error
	case SeverityCritical:
		return gcplogging.Critical
	default:
		return gcplogging.Info
	}
}

// New returns a GCPLogger if GBOS_GCP_PROJECT is set and reachable,
// otherwise a JSONLogger writing structured JSON to stdout.
func New(ctx context.Context, runID string, labels map[string]string) Logger {
	if projectID := os.Getenv("GBOS_GCP_PROJECT"); projectID != "" {
		if logger, err := NewGCPLogger(ctx, projectID, "gbos", runID, labels); err == nil {
			return logger
		}
	}
	return NewJSONLogger(os.Stdout, runID, labels)
}

// Console is the human-readable console sink for the CLI's own status
// lines, separate from the structured run log.
var Console = log.New(os.Stdout, "[gbos] ", log.LstdFlags)

// Redact masks a string that starts with a "Bearer " or GitLab "glpat-"
// token prefix before it is logged or echoed back to the user. Secrets
// that appear later in the string are not detected.
func Redact(s string) string {
	if strings.HasPrefix(s, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	if strings.HasPrefix(s, "glpat-") {
		return "[REDACTED_GITLAB_TOKEN]"
	}
	return s
}

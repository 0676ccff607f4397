// Package controlplane is an HTTP client for the gbos control plane: the
// backend that assigns applications, dev nodes, and tasks to this CLI's
// driver. Its shape — functional-option http.Client + base URL
// construction, bearer-token injection, explicit status-code branching,
// a typed API-error parser — is grounded on the teacher's
// internal/github.TokenExchanger.
package controlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Client talks to the control-plane REST API.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL sets a custom control-plane base URL (useful for testing
// against an httptest.Server).
func WithBaseURL(u string) ClientOption {
	return func(cl *Client) { cl.baseURL = u }
}

// NewClient creates a Client authenticated with a bearer access token.
func NewClient(accessToken string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     "https://api.gbos.dev",
		accessToken: accessToken,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Session is the authenticated user/account session.
type Session struct {
	User    json.RawMessage `json:"user"`
	Account json.RawMessage `json:"account"`
}

// Connection is the CLI's current node binding.
type Connection struct {
	Application json.RawMessage `json:"application"`
	Node        json.RawMessage `json:"node"`
}

// Node is a dev node the CLI can bind to.
type Node struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Task is a unit of work assigned by the control plane.
type Task struct {
	ID      string `json:"id"`
	TaskKey string `json:"task_key"`
	Title   string `json:"title"`
}

// ConnectRequest binds the CLI to a dev node.
type ConnectRequest struct {
	WorkingDirectory string `json:"working_directory"`
	GitRepoURL       string `json:"git_repo_url,omitempty"`
	GitBranch        string `json:"git_branch,omitempty"`
	AgentCLI         string `json:"agent_cli"`
}

// ConnectResponse is returned after a successful connect.
type ConnectResponse struct {
	ConnectionID string          `json:"connection_id"`
	Node         json.RawMessage `json:"node"`
}

// HeartbeatRequest reports liveness and progress.
type HeartbeatRequest struct {
	CurrentTaskID string `json:"current_task_id,omitempty"`
	Progress      string `json:"progress,omitempty"`
}

// CompleteTaskRequest reports a task's completion.
type CompleteTaskRequest struct {
	CompletionNotes string `json:"completion_notes"`
	CommitHash      string `json:"commit_hash,omitempty"`
	MergeRequestURL string `json:"merge_request_url,omitempty"`
	TestsPassed     *bool  `json:"tests_passed,omitempty"`
}

// FailTaskRequest reports a task's failure.
type FailTaskRequest struct {
	Reason string `json:"reason"`
}

// ErrNoTask is returned by NextTask when the control plane has no work
// for this node (a 404 response).
var ErrNoTask = fmt.Errorf("controlplane: no task available")

// AuthSession validates the current session.
func (c *Client) AuthSession(ctx context.Context) (*Session, error) {
	var resp struct {
		Data Session `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/cli/auth/session", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Connection returns the current node connection.
func (c *Client) Connection(ctx context.Context) (*Connection, error) {
	var resp struct {
		Data Connection `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/cli/connection", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Nodes lists dev nodes, optionally scoped to an application.
func (c *Client) Nodes(ctx context.Context, applicationID string) ([]Node, error) {
	path := "/cli/nodes"
	if applicationID != "" {
		path += "?application_id=" + url.QueryEscape(applicationID)
	}
	var resp struct {
		Data []Node `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Connect binds the CLI to a dev node.
func (c *Client) Connect(ctx context.Context, nodeID string, req ConnectRequest) (*ConnectResponse, error) {
	var resp struct {
		Data ConnectResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/cli/connect/"+url.PathEscape(nodeID), req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Disconnect releases the current node binding.
func (c *Client) Disconnect(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/cli/disconnect", nil, nil)
}

// Heartbeat reports liveness and progress. Failures are the caller's to
// treat as best-effort per the spec's error taxonomy.
func (c *Client) Heartbeat(ctx context.Context, req HeartbeatRequest) error {
	return c.do(ctx, http.MethodPost, "/cli/heartbeat", req, nil)
}

// NextTask requests the next task for this node, returning ErrNoTask when
// the control plane reports none available.
func (c *Client) NextTask(ctx context.Context) (*Task, error) {
	var resp struct {
		Data struct {
			Task Task `json:"task"`
		} `json:"data"`
	}
	err := c.do(ctx, http.MethodGet, "/cli/tasks/next", nil, &resp)
	if isNotFound(err) {
		return nil, ErrNoTask
	}
	if err != nil {
		return nil, err
	}
	return &resp.Data.Task, nil
}

// StartTask marks a task in progress.
func (c *Client) StartTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/cli/tasks/"+url.PathEscape(taskID)+"/start", nil, nil)
}

// CompleteTask reports a task's completion.
func (c *Client) CompleteTask(ctx context.Context, taskID string, req CompleteTaskRequest) error {
	return c.do(ctx, http.MethodPost, "/cli/tasks/"+url.PathEscape(taskID)+"/complete", req, nil)
}

// FailTask reports a task's failure.
func (c *Client) FailTask(ctx context.Context, taskID string, req FailTaskRequest) error {
	return c.do(ctx, http.MethodPost, "/cli/tasks/"+url.PathEscape(taskID)+"/fail", req, nil)
}

// statusError carries the HTTP status code of a non-2xx response so
// callers like NextTask can distinguish a 404 from other failures.
type statusError struct {
	statusCode int
	err        error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.statusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{statusCode: resp.StatusCode, err: parseAPIError(resp.StatusCode, respBody)}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("parsing response from %s: %w", path, err)
		}
	}
	return nil
}

type apiError struct {
	Message string `json:"message"`
	Error_  string `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("control plane API error (status %d): %s", statusCode, string(body))
	}
	msg := apiErr.Message
	if msg == "" {
		msg = apiErr.Error_
	}
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("control plane: not authenticated: %s", msg)
	case http.StatusForbidden:
		return fmt.Errorf("control plane: forbidden: %s", msg)
	case http.StatusNotFound:
		return fmt.Errorf("control plane: not found: %s", msg)
	default:
		return fmt.Errorf("control plane API error (status %d): %s", statusCode, msg)
	}
}

// Package gitlab is a minimal REST client for GitLab merge requests,
// authenticating with a personal or project access token rather than
// GitHub's JWT-then-installation-token exchange. The client shape (an
// http.Client plus functional options, explicit status-code handling,
// a typed API-error parser) is grounded on the teacher's
// internal/github.TokenExchanger.
package gitlab

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

// Client talks to the GitLab REST API for a single project.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client for the Client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL sets a custom GitLab API base URL (useful for self-hosted
// instances and for testing against an httptest.Server).
func WithBaseURL(u string) ClientOption {
	return func(cl *Client) { cl.baseURL = u }
}

// NewClient creates a Client authenticated with a PRIVATE-TOKEN-style
// access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    "https://gitlab.com/api/v4",
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MergeRequestRequest describes a merge request to open.
type MergeRequestRequest struct {
	ProjectID          string
	SourceBranch       string
	TargetBranch       string
	Title              string
	Description        string
	RemoveSourceBranch bool
}

// mergeRequestResponse is the subset of GitLab's merge request payload
// this client cares about.
type mergeRequestResponse struct {
	WebURL string `json:"web_url"`
	IID    int    `json:"iid"`
}

// CreateMergeRequest opens a merge request and returns its web URL.
func (c *Client) CreateMergeRequest(ctx context.Context, req MergeRequestRequest) (string, error) {
	if req.ProjectID == "" {
		return "", fmt.Errorf("gitlab: project ID is required")
	}
	if req.TargetBranch == "" {
		req.TargetBranch = "main"
	}

	body := map[string]interface{}{
		"source_branch":        req.SourceBranch,
		"target_branch":        req.TargetBranch,
		"title":                req.Title,
		"description":          req.Description,
		"remove_source_branch": req.RemoveSourceBranch,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("encoding merge request body: %w", err)
	}

	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests", c.baseURL, url.PathEscape(req.ProjectID))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("PRIVATE-TOKEN", c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("creating merge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		// An open MR already exists for this branch; find and return it.
		return c.findMergeRequest(ctx, req.ProjectID, req.SourceBranch)
	}
	if resp.StatusCode != http.StatusCreated {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var mr mergeRequestResponse
	if err := json.Unmarshal(respBody, &mr); err != nil {
		return "", fmt.Errorf("parsing merge request response: %w", err)
	}
	return mr.WebURL, nil
}

func (c *Client) findMergeRequest(ctx context.Context, projectID, sourceBranch string) (string, error) {
	endpoint := fmt.Sprintf("%s/projects/%s/merge_requests?source_branch=%s&state=opened",
		c.baseURL, url.PathEscape(projectID), url.QueryEscape(sourceBranch))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("PRIVATE-TOKEN", c.token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("finding merge request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", parseAPIError(resp.StatusCode, body)
	}

	var mrs []mergeRequestResponse
	if err := json.Unmarshal(body, &mrs); err != nil {
		return "", fmt.Errorf("parsing merge request list: %w", err)
	}
	if len(mrs) == 0 {
		return "", fmt.Errorf("gitlab: no open merge request found for branch %q", sourceBranch)
	}
	return mrs[0].WebURL, nil
}

// apiError represents an error response from the GitLab API.
type apiError struct {
	Message interface{} `json:"message"`
	Error_  string      `json:"error"`
}

func parseAPIError(statusCode int, body []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return fmt.Errorf("gitlab API error (status %d): %s", statusCode, string(body))
	}
	switch statusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("gitlab: unauthorized (check access token)")
	case http.StatusForbidden:
		return fmt.Errorf("gitlab: forbidden (check token scopes)")
	case http.StatusNotFound:
		return fmt.Errorf("gitlab: project not found")
	default:
		if apiErr.Message != nil {
			return fmt.Errorf("gitlab API error (status %d): %v", statusCode, apiErr.Message)
		}
		return fmt.Errorf("gitlab API error (status %d): %s", statusCode, apiErr.Error_)
	}
}

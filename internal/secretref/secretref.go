// Package secretref resolves secret:// indirections to their plaintext
// values via GCP Secret Manager. The client shape (wrap the GCP client,
// derive the project ID from the environment or the metadata server,
// normalize bare secret names into a full resource path) is carried over
// from the teacher's internal/cloud/gcp.SecretManagerClient.
package secretref

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/option"
)

const scheme = "secret://"

// IsRef reports whether value is a secret:// reference rather than a
// literal value.
func IsRef(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// Resolver resolves secret:// references to plaintext.
type Resolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// Client resolves secret:// references against GCP Secret Manager.
type Client struct {
	client    *secretmanager.Client
	projectID string
}

// NewClient creates a Client, deriving the GCP project ID from the
// environment or the instance metadata server if not set explicitly.
func NewClient(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret manager client: %w", err)
	}

	projectID, err := projectID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to determine GCP project: %w", err)
	}

	return &Client{client: client, projectID: projectID}, nil
}

func projectID(ctx context.Context) (string, error) {
	for _, envVar := range []string{"GOOGLE_CLOUD_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT"} {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}
	return projectIDFromMetadata(ctx)
}

func projectIDFromMetadata(ctx context.Context) (string, error) {
	const metadataURL = "http://metadata.google.internal/computeMetadata/v1/project/project-id"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating metadata request: %w", err)
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching project ID from metadata server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata server returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading metadata response: %w", err)
	}

	id := strings.TrimSpace(string(body))
	if id == "" {
		return "", fmt.Errorf("empty project ID from metadata server")
	}
	return id, nil
}

// Resolve fetches the secret value ref points to. ref may be a bare
// secret:// reference (secret://my-secret) or carry a full resource path
// (secret://projects/p/secrets/my-secret/versions/3).
func (c *Client) Resolve(ctx context.Context, ref string) (string, error) {
	if !IsRef(ref) {
		return ref, nil
	}
	name := c.normalize(strings.TrimPrefix(ref, scheme))

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := c.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", fmt.Errorf("accessing secret version: %w", err)
	}
	return string(result.Payload.Data), nil
}

func (c *Client) normalize(secretPath string) string {
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/versions/") {
		return secretPath
	}
	if strings.HasPrefix(secretPath, "projects/") && strings.Contains(secretPath, "/secrets/") {
		return secretPath + "/versions/latest"
	}
	name := path.Base(secretPath)
	return fmt.Sprintf("projects/%s/secrets/%s/versions/latest", c.projectID, name)
}

// Close releases the underlying GCP client connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

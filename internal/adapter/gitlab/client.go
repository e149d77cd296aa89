// Package gitlab provides an HTTP client for the GitLab v4 REST API,
// covering merge-request notes and project/MR metadata.
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

	"github.com/sustainabot/sustainabot/internal/domain"
	"github.com/sustainabot/sustainabot/internal/resilience"
)

// Client talks to the GitLab v4 REST API using a static API token
// (PRIVATE-TOKEN header). GitLab has no installation-token dance; the token
// comes from configuration.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a GitLab API client. baseURL is normally
// https://gitlab.com/api/v4; tests point it at a local server.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Configured reports whether an API token is present. Without one the
// pipeline still analyzes but cannot post notes.
func (c *Client) Configured() bool {
	return c.token != ""
}

// Request performs an authenticated call and returns the raw JSON response.
// Any non-2xx response is an error carrying the status code and body.
func (c *Client) Request(ctx context.Context, method, endpoint string, body any) (json.RawMessage, error) {
	var result json.RawMessage
	call := func() error {
		var bodyReader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request body: %w", err)
			}
			bodyReader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bodyReader)
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "sustainabot")
		req.Header.Set("PRIVATE-TOKEN", c.token)
		if bodyReader != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: %s %s: status %d: %s", domain.ErrPlatformAPI, method, endpoint, resp.StatusCode, data)
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(ctx, call); err != nil {
			return nil, err
		}
		return result, nil
	}
	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}

// projectPath URL-encodes a "namespace/name" path for use as a project id.
func projectPath(namespace, name string) string {
	return url.PathEscape(namespace + "/" + name)
}

// PostMergeRequestNote creates a note (comment) on a merge request and
// returns the new note id.
func (c *Client) PostMergeRequestNote(ctx context.Context, namespace, name string, mrIID int, body string) (int64, error) {
	raw, err := c.Request(ctx, http.MethodPost,
		fmt.Sprintf("/projects/%s/merge_requests/%d/notes", projectPath(namespace, name), mrIID),
		map[string]string{"body": body})
	if err != nil {
		return 0, fmt.Errorf("post mr note: %w", err)
	}

	var note struct {
		ID *int64 `json:"id"`
	}
	if err := json.Unmarshal(raw, &note); err != nil {
		return 0, fmt.Errorf("parse mr note response: %w", err)
	}
	if note.ID == nil {
		return 0, fmt.Errorf("mr note response missing id")
	}
	return *note.ID, nil
}

// MergeRequest holds the MR metadata the pipeline consumes.
type MergeRequest struct {
	Title        string
	SourceBranch string
	TargetBranch string
	SHA          string
}

// GetMergeRequest fetches MR metadata: title, source/target branches, SHA.
func (c *Client) GetMergeRequest(ctx context.Context, namespace, name string, mrIID int) (*MergeRequest, error) {
	raw, err := c.Request(ctx, http.MethodGet,
		fmt.Sprintf("/projects/%s/merge_requests/%d", projectPath(namespace, name), mrIID), nil)
	if err != nil {
		return nil, fmt.Errorf("get merge request: %w", err)
	}

	var mr struct {
		Title        string `json:"title"`
		SourceBranch string `json:"source_branch"`
		TargetBranch string `json:"target_branch"`
		SHA          string `json:"sha"`
	}
	if err := json.Unmarshal(raw, &mr); err != nil {
		return nil, fmt.Errorf("parse merge request: %w", err)
	}
	if mr.SourceBranch == "" || mr.TargetBranch == "" {
		return nil, fmt.Errorf("merge request response missing source/target branches")
	}

	return &MergeRequest{
		Title:        mr.Title,
		SourceBranch: mr.SourceBranch,
		TargetBranch: mr.TargetBranch,
		SHA:          mr.SHA,
	}, nil
}

// Project holds the project metadata the pipeline consumes.
type Project struct {
	WebURL        string
	DefaultBranch string
}

// GetProject fetches project metadata.
func (c *Client) GetProject(ctx context.Context, namespace, name string) (*Project, error) {
	raw, err := c.Request(ctx, http.MethodGet,
		"/projects/"+projectPath(namespace, name), nil)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	var p struct {
		WebURL        string `json:"web_url"`
		DefaultBranch string `json:"default_branch"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse project: %w", err)
	}
	if p.WebURL == "" {
		return nil, fmt.Errorf("project response missing web_url")
	}

	return &Project{WebURL: p.WebURL, DefaultBranch: p.DefaultBranch}, nil
}

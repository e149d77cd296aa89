// Package github provides an HTTP client for the GitHub REST API, covering
// the App installation-token exchange, PR metadata, issue comments and check
// runs.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sustainabot/sustainabot/internal/domain"
	"github.com/sustainabot/sustainabot/internal/resilience"
)

const (
	acceptHeader     = "application/vnd.github+json"
	apiVersionHeader = "2022-11-28"
	userAgent        = "sustainabot"
)

// Client talks to the GitHub REST API with a bearer token supplied per call:
// an App JWT for the installation-token endpoint, an installation token for
// everything else.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a GitHub API client. baseURL is normally
// https://api.github.com; tests point it at a local server.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// Request performs a bearer-authenticated call and returns the raw JSON
// response. Any non-2xx response is an error carrying the status code and
// response body; it is never swallowed.
func (c *Client) Request(ctx context.Context, token, method, endpoint string, body any) (json.RawMessage, error) {
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
		req.Header.Set("Accept", acceptHeader)
		req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Authorization", "Bearer "+token)
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

// InstallationToken is a short-lived credential issued to an App installation.
type InstallationToken struct {
	Token     string
	ExpiresAt time.Time
}

// CreateInstallationToken exchanges an App JWT for an installation token.
// A missing token field in the response is an error, never an empty token.
func (c *Client) CreateInstallationToken(ctx context.Context, appJWT, installationID string) (*InstallationToken, error) {
	raw, err := c.Request(ctx, appJWT, http.MethodPost,
		"/app/installations/"+installationID+"/access_tokens", nil)
	if err != nil {
		return nil, fmt.Errorf("create installation token: %w", err)
	}

	token, err := extractString(raw, "token")
	if err != nil {
		return nil, fmt.Errorf("installation token response: %w", err)
	}
	expiresStr, err := extractString(raw, "expires_at")
	if err != nil {
		return nil, fmt.Errorf("installation token response: %w", err)
	}
	expiresAt, err := time.Parse(time.RFC3339, expiresStr)
	if err != nil {
		return nil, fmt.Errorf("parse expires_at %q: %w", expiresStr, err)
	}

	return &InstallationToken{Token: token, ExpiresAt: expiresAt}, nil
}

// PostComment creates an issue comment on a pull request and returns the new
// comment id.
func (c *Client) PostComment(ctx context.Context, token, owner, repo string, number int, body string) (int64, error) {
	raw, err := c.Request(ctx, token, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number),
		map[string]string{"body": body})
	if err != nil {
		return 0, fmt.Errorf("post comment: %w", err)
	}

	id, err := extractNumber(raw, "id")
	if err != nil {
		return 0, fmt.Errorf("post comment response: %w", err)
	}
	return int64(id), nil
}

// UpdateComment replaces the body of an existing issue comment.
func (c *Client) UpdateComment(ctx context.Context, token, owner, repo string, commentID int64, body string) error {
	raw, err := c.Request(ctx, token, http.MethodPatch,
		fmt.Sprintf("/repos/%s/%s/issues/comments/%d", owner, repo, commentID),
		map[string]string{"body": body})
	if err != nil {
		return fmt.Errorf("update comment: %w", err)
	}

	if _, err := extractNumber(raw, "id"); err != nil {
		return fmt.Errorf("update comment response: %w", err)
	}
	return nil
}

// CreateCheckRun creates a completed check run with a success or failure
// conclusion mapped from the internal pass/fail outcome.
func (c *Client) CreateCheckRun(ctx context.Context, token, owner, repo, headSHA string, passed bool, title, summary string) (int64, error) {
	conclusion := "failure"
	if passed {
		conclusion = "success"
	}

	raw, err := c.Request(ctx, token, http.MethodPost,
		fmt.Sprintf("/repos/%s/%s/check-runs", owner, repo),
		map[string]any{
			"name":       "sustainabot",
			"head_sha":   headSHA,
			"status":     "completed",
			"conclusion": conclusion,
			"output": map[string]string{
				"title":   title,
				"summary": summary,
			},
		})
	if err != nil {
		return 0, fmt.Errorf("create check run: %w", err)
	}

	id, err := extractNumber(raw, "id")
	if err != nil {
		return 0, fmt.Errorf("create check run response: %w", err)
	}
	return int64(id), nil
}

// PullRequest holds the PR metadata the pipeline consumes.
type PullRequest struct {
	Title   string
	BaseRef string
	HeadRef string
	HeadSHA string
}

// GetPullRequest fetches PR metadata: title, base/head refs and head SHA.
func (c *Client) GetPullRequest(ctx context.Context, token, owner, repo string, number int) (*PullRequest, error) {
	raw, err := c.Request(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number), nil)
	if err != nil {
		return nil, fmt.Errorf("get pull request: %w", err)
	}

	var pr struct {
		Title string `json:"title"`
		Base  struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
			SHA string `json:"sha"`
		} `json:"head"`
	}
	if err := json.Unmarshal(raw, &pr); err != nil {
		return nil, fmt.Errorf("parse pull request: %w", err)
	}
	if pr.Base.Ref == "" || pr.Head.Ref == "" {
		return nil, fmt.Errorf("pull request response missing base/head refs")
	}

	return &PullRequest{
		Title:   pr.Title,
		BaseRef: pr.Base.Ref,
		HeadRef: pr.Head.Ref,
		HeadSHA: pr.Head.SHA,
	}, nil
}

// Repository holds the repository metadata the pipeline consumes.
type Repository struct {
	HTMLURL       string
	DefaultBranch string
	CloneURL      string
}

// GetRepository fetches repository metadata.
func (c *Client) GetRepository(ctx context.Context, token, owner, repo string) (*Repository, error) {
	raw, err := c.Request(ctx, token, http.MethodGet,
		fmt.Sprintf("/repos/%s/%s", owner, repo), nil)
	if err != nil {
		return nil, fmt.Errorf("get repository: %w", err)
	}

	htmlURL, err := extractString(raw, "html_url")
	if err != nil {
		return nil, fmt.Errorf("repository response: %w", err)
	}
	defaultBranch, err := extractString(raw, "default_branch")
	if err != nil {
		return nil, fmt.Errorf("repository response: %w", err)
	}
	cloneURL, _ := extractStringOptional(raw, "clone_url")

	return &Repository{
		HTMLURL:       htmlURL,
		DefaultBranch: defaultBranch,
		CloneURL:      cloneURL,
	}, nil
}

// --- Generic field extraction ---
//
// Derived calls pull single fields out of the raw JSON and fail loudly when
// a field is absent or mistyped, so platform schema drift surfaces as a
// descriptive error instead of a zero value.

func extractString(raw json.RawMessage, field string) (string, error) {
	v, err := extractField(raw, field)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q is %T, expected string", field, v)
	}
	return s, nil
}

func extractStringOptional(raw json.RawMessage, field string) (string, bool) {
	v, err := extractField(raw, field)
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func extractNumber(raw json.RawMessage, field string) (float64, error) {
	v, err := extractField(raw, field)
	if err != nil {
		return 0, err
	}
	n, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("field %q is %T, expected number", field, v)
	}
	return n, nil
}

func extractField(raw json.RawMessage, field string) (any, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	v, ok := m[field]
	if !ok || v == nil {
		return nil, fmt.Errorf("field %q missing from response", field)
	}
	return v, nil
}

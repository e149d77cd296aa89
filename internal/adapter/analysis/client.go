// Package analysis provides the HTTP client for the external Analysis
// Service and the documented fallback result used when it is unreachable.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sustainabot/sustainabot/internal/domain"
	domanalysis "github.com/sustainabot/sustainabot/internal/domain/analysis"
	"github.com/sustainabot/sustainabot/internal/resilience"
)

// Client talks to the Analysis Service. The endpoint is the configured base
// (e.g. http://localhost:8080/analyze); diff and whole-repo analyses POST to
// fixed sub-paths of it.
type Client struct {
	endpoint   string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates an Analysis Service client with a bounded timeout. An
// analysis call that never resolves must not leak a pending webhook
// delivery, so the timeout is mandatory.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all analysis calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// AnalyzeDiff requests analysis of the change between base and head.
func (c *Client) AnalyzeDiff(ctx context.Context, repoURL, base, head string) (*domanalysis.Result, error) {
	return c.post(ctx, "/diff", domanalysis.DiffRequest{URL: repoURL, Base: base, Head: head})
}

// AnalyzeRepository requests analysis of a whole repository at a ref.
func (c *Client) AnalyzeRepository(ctx context.Context, repoURL, ref string) (*domanalysis.Result, error) {
	return c.post(ctx, "/repository", domanalysis.RepositoryRequest{URL: repoURL, Ref: ref})
}

func (c *Client) post(ctx context.Context, subPath string, reqBody any) (*domanalysis.Result, error) {
	var result *domanalysis.Result
	call := func() error {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal analysis request: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+subPath, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "sustainabot")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrAnalysisUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%w: read response: %v", domain.ErrAnalysisUnavailable, err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("%w: status %d: %s", domain.ErrAnalysisUnavailable, resp.StatusCode, body)
		}

		var r domanalysis.Result
		if err := json.Unmarshal(body, &r); err != nil {
			return fmt.Errorf("%w: parse result: %v", domain.ErrAnalysisUnavailable, err)
		}
		result = &r
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

// FallbackResult returns the fixed placeholder substituted when the Analysis
// Service cannot produce a result. A degraded-but-visible comment is
// preferred over no feedback; the pipeline logs the substitution as an
// error. The sub-scores compose with equal weights.
func FallbackResult() *domanalysis.Result {
	return &domanalysis.Result{
		Health: domanalysis.HealthIndex{
			Eco:     71.5,
			Econ:    72.0,
			Quality: 75.5,
			Total:   73.0,
		},
		Recommendations: []domanalysis.Recommendation{
			{
				Action:   "Re-run the analysis once the analysis service is reachable",
				Reason:   "these scores are placeholder values reported while the analysis service was unavailable",
				Priority: domanalysis.SeverityInfo,
			},
		},
	}
}

package otel

import (
	"context"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "sustainabot"

// Metrics holds all sustainabot metric instruments. Each otel counter has an
// atomic mirror because otel instruments are write-only; the mirrors back the
// JSON /metrics endpoint.
type Metrics struct {
	webhooksReceived     metric.Int64Counter
	webhooksUnauthorized metric.Int64Counter
	verifySkipped        metric.Int64Counter
	analysesDispatched   metric.Int64Counter
	analysesFallback     metric.Int64Counter
	commentsPosted       metric.Int64Counter

	received     atomic.Int64
	unauthorized atomic.Int64
	skipped      atomic.Int64
	dispatched   atomic.Int64
	fallback     atomic.Int64
	comments     atomic.Int64
}

// Snapshot is the JSON shape served by /metrics.
type Snapshot struct {
	WebhooksReceived     int64 `json:"webhooks_received"`
	WebhooksUnauthorized int64 `json:"webhooks_unauthorized"`
	VerifySkipped        int64 `json:"verify_skipped"`
	AnalysesDispatched   int64 `json:"analyses_dispatched"`
	AnalysesFallback     int64 `json:"analyses_fallback"`
	CommentsPosted       int64 `json:"comments_posted"`
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.webhooksReceived, err = meter.Int64Counter("sustainabot.webhooks.received",
		metric.WithDescription("Webhook deliveries received"))
	if err != nil {
		return nil, err
	}

	m.webhooksUnauthorized, err = meter.Int64Counter("sustainabot.webhooks.unauthorized",
		metric.WithDescription("Webhook deliveries rejected for failed verification"))
	if err != nil {
		return nil, err
	}

	m.verifySkipped, err = meter.Int64Counter("sustainabot.verify.skipped",
		metric.WithDescription("Webhook deliveries accepted without verification (no secret configured)"))
	if err != nil {
		return nil, err
	}

	m.analysesDispatched, err = meter.Int64Counter("sustainabot.analyses.dispatched",
		metric.WithDescription("Analyses dispatched to the analysis service"))
	if err != nil {
		return nil, err
	}

	m.analysesFallback, err = meter.Int64Counter("sustainabot.analyses.fallback",
		metric.WithDescription("Analyses that substituted the fallback result"))
	if err != nil {
		return nil, err
	}

	m.commentsPosted, err = meter.Int64Counter("sustainabot.comments.posted",
		metric.WithDescription("Report comments posted to a platform"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func platformAttr(platform string) metric.AddOption {
	return metric.WithAttributes(attribute.String("platform", platform))
}

// WebhookReceived counts a delivery that reached a webhook handler.
func (m *Metrics) WebhookReceived(platform string) {
	m.webhooksReceived.Add(context.Background(), 1, platformAttr(platform))
	m.received.Add(1)
}

// Unauthorized counts a delivery rejected by signature or token verification.
func (m *Metrics) Unauthorized(platform string) {
	m.webhooksUnauthorized.Add(context.Background(), 1, platformAttr(platform))
	m.unauthorized.Add(1)
}

// VerifySkipped counts a delivery accepted without verification because no
// secret is configured.
func (m *Metrics) VerifySkipped(platform string) {
	m.verifySkipped.Add(context.Background(), 1, platformAttr(platform))
	m.skipped.Add(1)
}

// AnalysisDispatched counts an analysis request sent to the analysis service.
func (m *Metrics) AnalysisDispatched(platform string) {
	m.analysesDispatched.Add(context.Background(), 1, platformAttr(platform))
	m.dispatched.Add(1)
}

// AnalysisFallback counts an analysis that fell back to the placeholder
// result.
func (m *Metrics) AnalysisFallback(platform string) {
	m.analysesFallback.Add(context.Background(), 1, platformAttr(platform))
	m.fallback.Add(1)
}

// CommentPosted counts a report comment successfully posted.
func (m *Metrics) CommentPosted(platform string) {
	m.commentsPosted.Add(context.Background(), 1, platformAttr(platform))
	m.comments.Add(1)
}

// Read returns the current counter values.
func (m *Metrics) Read() Snapshot {
	return Snapshot{
		WebhooksReceived:     m.received.Load(),
		WebhooksUnauthorized: m.unauthorized.Load(),
		VerifySkipped:        m.skipped.Load(),
		AnalysesDispatched:   m.dispatched.Load(),
		AnalysesFallback:     m.fallback.Load(),
		CommentsPosted:       m.comments.Load(),
	}
}

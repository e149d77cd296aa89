package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "sustainabot"

// StartWebhookSpan starts a span covering the processing of one webhook
// delivery.
func StartWebhookSpan(ctx context.Context, platform, eventType string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "webhook",
		trace.WithAttributes(
			attribute.String("webhook.platform", platform),
			attribute.String("webhook.event", eventType),
		),
	)
}

// StartAnalysisSpan starts a span for one analysis dispatch.
func StartAnalysisSpan(ctx context.Context, repo string, prNumber int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "analysis",
		trace.WithAttributes(
			attribute.String("analysis.repo", repo),
			attribute.Int("analysis.pr", prNumber),
		),
	)
}

// Package otel provides metric instruments, tracing spans and HTTP
// instrumentation. Export wiring is left to the host: without an SDK the
// otel API is a no-op, and the atomic mirrors in Metrics keep /metrics
// readable either way.
package otel

import (
	"context"
	"log/slog"
)

// ShutdownFunc is called to flush and shut down the trace provider.
type ShutdownFunc func(ctx context.Context) error

// InitTracer returns a no-op shutdown function. Exporter setup belongs to
// the deployment, not this binary.
func InitTracer(serviceName string) ShutdownFunc {
	slog.Debug("tracing initialized without exporter", "service", serviceName)
	return func(_ context.Context) error {
		return nil
	}
}

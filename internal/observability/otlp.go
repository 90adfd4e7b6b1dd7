// Package observability wires Genkit's tracer to an OTLP collector.
//
// Genkit instruments flows, model calls, and retriever calls with
// OpenTelemetry spans on its own TracerProvider. This package attaches
// a BatchSpanProcessor exporting over OTLP/HTTP, so any compatible
// collector (otel-collector, Jaeger, a vendor agent) receives them.
package observability

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/recallhq/recall/internal/config"
)

const shutdownTimeout = 5 * time.Second

// SetupTracing registers an OTLP/HTTP span exporter on Genkit's
// TracerProvider. It must run before genkit.Init so the provider is
// ready when the first span starts.
//
// An empty cfg.Endpoint disables export; the returned shutdown function
// is always safe to call. Exporter construction failures are logged and
// tracing is disabled rather than failing startup: a missing collector
// must not take the service down.
func SetupTracing(ctx context.Context, cfg config.OTLPConfig, logger *slog.Logger) func() {
	if cfg.Endpoint == "" {
		return func() {}
	}

	// Resource attributes are picked up from the environment by Genkit's
	// TracerProvider. Setenv happens once during startup, before any
	// goroutines are spawned.
	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}
	if cfg.Environment != "" {
		_ = os.Setenv("OTEL_RESOURCE_ATTRIBUTES", "deployment.environment="+cfg.Environment)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(), // collectors are reached over localhost or a private network
	)
	if err != nil {
		logger.Warn("creating OTLP exporter, tracing disabled", "error", err)
		return func() {}
	}

	processor := sdktrace.NewBatchSpanProcessor(exporter)
	tracing.TracerProvider().RegisterSpanProcessor(processor)

	logger.Debug("OTLP tracing enabled",
		"endpoint", cfg.Endpoint,
		"service", cfg.ServiceName,
		"environment", cfg.Environment,
	)

	shutdown := tracing.TracerProvider().Shutdown

	//nolint:contextcheck // shutdown runs during teardown when the parent context is already canceled
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// Package telemetry provides OpenTelemetry integration for the traces,
// metrics and logs emitted by the routing pipeline.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Exporter holds the collector settings shared by every signal.
type Exporter struct {
	Enabled           bool
	CollectorEndpoint string // e.g. "localhost:4317"
	ServiceName       string
	// ServiceVersion is the pipeline version, so exported data can be tied
	// to the mapping tables that produced it.
	ServiceVersion string
	Insecure       bool // development only
}

func (e Exporter) resource() (*resource.Resource, error) {
	version := e.ServiceVersion
	if version == "" {
		version = "unknown"
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(e.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// lifecycle is the flush and shutdown half of a signal provider. A zero
// shutdown func means the signal is disabled and nothing is exported.
type lifecycle struct {
	signal   string
	logger   *zap.Logger
	shutdown func(context.Context) error
	flush    func(context.Context) error
}

func newLifecycle(signal string, logger *zap.Logger) lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return lifecycle{signal: signal, logger: logger}
}

func (l *lifecycle) started(shutdown, flush func(context.Context) error, fields ...zap.Field) {
	l.shutdown = shutdown
	l.flush = flush
	l.logger.Info("OpenTelemetry "+l.signal+" export started", fields...)
}

// IsEnabled reports whether the signal is exported.
func (l *lifecycle) IsEnabled() bool {
	return l.shutdown != nil
}

// ForceFlush exports everything buffered so far.
func (l *lifecycle) ForceFlush(ctx context.Context) error {
	if l.flush == nil {
		return nil
	}
	return l.flush(ctx)
}

// Shutdown flushes pending data and stops the exporter. It gives up after
// ten seconds so a dead collector cannot block process exit.
func (l *lifecycle) Shutdown(ctx context.Context) error {
	if l.shutdown == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := l.shutdown(ctx); err != nil {
		l.logger.Error("OpenTelemetry "+l.signal+" shutdown failed", zap.Error(err))
		return fmt.Errorf("failed to shutdown %s provider: %w", l.signal, err)
	}
	l.shutdown = nil
	l.flush = nil
	l.logger.Info("OpenTelemetry " + l.signal + " export stopped")
	return nil
}

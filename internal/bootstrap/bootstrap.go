// Package bootstrap assembles the pipeline service and its infrastructure
// from configuration. Both the HTTP server and the batch command start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/invoicerouter/internal/application/pipeline"
	"github.com/erp/invoicerouter/internal/domain/shared"
	"github.com/erp/invoicerouter/internal/infrastructure/cache"
	"github.com/erp/invoicerouter/internal/infrastructure/config"
	"github.com/erp/invoicerouter/internal/infrastructure/logger"
	"github.com/erp/invoicerouter/internal/infrastructure/storage"
	"github.com/erp/invoicerouter/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// TimeFormat is the log timestamp layout used by every command
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Runtime owns the long-lived collaborators of one process
type Runtime struct {
	Config        *config.Config
	Logger        *zap.Logger
	Service       *pipeline.Service
	MeterProvider *telemetry.MeterProvider

	tracerProvider *telemetry.TracerProvider
	loggerProvider *telemetry.LoggerProvider
	store          shared.IdempotencyStore
}

// NewLogger builds the process logger. When log export is enabled the
// returned logger also forwards entries to the collector.
func NewLogger(ctx context.Context, cfg *config.Config) (*zap.Logger, *telemetry.LoggerProvider, error) {
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: TimeFormat,
		Service:    cfg.App.Name,
	}

	base, err := logger.New(logCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	exp := exporter(cfg)
	exp.Enabled = exp.Enabled && cfg.Telemetry.LogsEnabled
	lp, err := telemetry.NewLoggerProvider(ctx, exp, base)
	if err != nil {
		return nil, nil, err
	}
	if !lp.IsEnabled() {
		return base, lp, nil
	}

	bridged, err := logger.New(logCfg, lp.Core(logger.ParseLevel(cfg.Log.Level)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	_ = logger.Sync(base)
	return bridged, lp, nil
}

func exporter(cfg *config.Config) telemetry.Exporter {
	return telemetry.Exporter{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    cfg.Pipeline.Version,
		Insecure:          cfg.Telemetry.Insecure,
	}
}

// New wires telemetry, the idempotency store, the artifact sink and the
// pipeline service. On error everything started so far, lp included, is
// already shut down.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, lp *telemetry.LoggerProvider) (*Runtime, error) {
	rt := &Runtime{
		Config:         cfg,
		Logger:         log,
		loggerProvider: lp,
	}

	tp, err := telemetry.NewTracerProvider(ctx, telemetry.TraceConfig{
		Exporter:      exporter(cfg),
		SamplingRatio: cfg.Telemetry.SamplingRatio,
	}, log)
	if err != nil {
		return nil, err
	}
	rt.tracerProvider = tp

	mp, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Exporter:       exporter(cfg),
		ExportInterval: cfg.Telemetry.MetricsExportInterval,
	}, log)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	rt.MeterProvider = mp

	metrics, err := telemetry.NewRoutingMetrics(telemetry.RoutingMetricsConfig{
		Meter:  mp.Meter(telemetry.MeterName),
		Logger: log,
	})
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, fmt.Errorf("failed to create routing metrics: %w", err)
	}

	store, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(true),
	).CreateStore(ctx)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	rt.store = store

	policy, err := cfg.Policy.ValidationPolicy()
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithMetrics(metrics),
		pipeline.WithIdempotency(store, cfg.Redis.IdempotencyTTL),
	}
	if cfg.Storage.Enabled {
		sink, err := storage.NewS3ArtifactStore(ctx, &cfg.Storage, storage.WithLogger(log))
		if err != nil {
			_ = rt.Shutdown(ctx)
			return nil, err
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			_ = rt.Shutdown(ctx)
			return nil, err
		}
		opts = append(opts, pipeline.WithSink(sink, cfg.Storage.Prefix))
		log.Info("Publishing audit records",
			zap.String("bucket", sink.Bucket()),
			zap.String("prefix", cfg.Storage.Prefix),
		)
	} else {
		log.Info("Artifact storage disabled, audit records are not published")
	}

	svc, err := pipeline.NewService(pipeline.Config{
		PipelineVersion:  cfg.Pipeline.Version,
		Policy:           policy,
		BatchConcurrency: cfg.Pipeline.BatchConcurrency,
		MaxBatchSize:     cfg.Pipeline.MaxBatchSize,
	}, opts...)
	if err != nil {
		_ = rt.Shutdown(ctx)
		return nil, err
	}
	rt.Service = svc

	return rt, nil
}

// TracingEnabled reports whether spans are exported
func (rt *Runtime) TracingEnabled() bool {
	return rt.tracerProvider != nil && rt.tracerProvider.IsEnabled()
}

// Shutdown flushes telemetry and closes the idempotency store
func (rt *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close idempotency store: %w", err))
		}
	}
	if rt.MeterProvider != nil {
		if err := rt.MeterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.tracerProvider != nil {
		if err := rt.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.loggerProvider != nil {
		if err := rt.loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

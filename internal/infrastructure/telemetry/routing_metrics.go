package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// MeterName is the instrumentation scope for pipeline metrics.
const MeterName = "github.com/erp/invoicerouter/pipeline"

// RoutingMetrics records per-document and per-batch pipeline metrics.
type RoutingMetrics struct {
	logger *zap.Logger

	documentsTotal    *Counter
	reasonCodesTotal  *Counter
	failuresTotal     *Counter
	duplicatesTotal   *Counter
	stageDuration     *Histogram
	routingConfidence *Histogram
	batchDuration     *Histogram
	batchSize         *Gauge
	autoPostRatio     *FloatGauge
}

// RoutingMetricsConfig holds configuration for RoutingMetrics.
type RoutingMetricsConfig struct {
	Meter  metric.Meter
	Logger *zap.Logger
}

// NewRoutingMetrics creates all routing instruments on cfg.Meter.
func NewRoutingMetrics(cfg RoutingMetricsConfig) (*RoutingMetrics, error) {
	if cfg.Meter == nil {
		return nil, ErrMeterNil
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	set := NewInstrumentSet(cfg.Meter)
	rm := &RoutingMetrics{
		logger:            cfg.Logger,
		documentsTotal:    set.Counter(documentsProcessed),
		reasonCodesTotal:  set.Counter(reasonCodes),
		failuresTotal:     set.Counter(processingFailures),
		duplicatesTotal:   set.Counter(auditDuplicates),
		stageDuration:     set.Histogram(stageDuration),
		routingConfidence: set.Histogram(routingConfidence),
		batchDuration:     set.Histogram(batchDuration),
		batchSize:         set.Gauge(batchSize),
		autoPostRatio:     set.FloatGauge(autoPostRatio),
	}
	if err := set.Err(); err != nil {
		return nil, err
	}
	return rm, nil
}

var (
	documentsProcessed = Instrument{
		Name:        "invoice_documents_processed_total",
		Description: "Documents that finished the pipeline, by vendor, status and outcome",
		Unit:        "{documents}",
	}
	reasonCodes = Instrument{
		Name:        "invoice_routing_reason_codes_total",
		Description: "Reason codes attached to routing decisions",
		Unit:        "{codes}",
	}
	processingFailures = Instrument{
		Name:        "invoice_processing_failures_total",
		Description: "Documents whose processing stopped with an error, by stage",
		Unit:        "{documents}",
	}
	auditDuplicates = Instrument{
		Name:        "invoice_audit_duplicates_total",
		Description: "Audit records skipped because an identical record was already published",
		Unit:        "{records}",
	}
	stageDuration = Instrument{
		Name:        "invoice_stage_duration_seconds",
		Description: "Time spent in each pipeline stage",
		Unit:        "s",
		Buckets:     StageDurationBuckets,
	}
	routingConfidence = Instrument{
		Name:        "invoice_routing_confidence",
		Description: "Minimum required-field confidence of routed documents",
		Unit:        "1",
		Buckets:     ConfidenceBuckets,
	}
	batchDuration = Instrument{
		Name:        "invoice_batch_duration_seconds",
		Description: "Wall time of a batch run",
		Unit:        "s",
		Buckets:     BatchDurationBuckets,
	}
	batchSize = Instrument{
		Name:        "invoice_batch_size",
		Description: "Number of documents in the most recent batch",
		Unit:        "{documents}",
	}
	autoPostRatio = Instrument{
		Name:        "invoice_batch_auto_post_ratio",
		Description: "Share of the most recent batch routed to AUTO_POST",
		Unit:        "1",
	}
)

// RecordStage records how long a document spent reaching stage.
func (rm *RoutingMetrics) RecordStage(ctx context.Context, vendor, stage string, d time.Duration) {
	rm.stageDuration.RecordDuration(ctx, d,
		AttrVendor.String(vendor),
		AttrStage.String(stage),
	)
}

// RecordRouted records a document that reached a routing decision.
func (rm *RoutingMetrics) RecordRouted(ctx context.Context, vendor, outcome string, confidence float64, reasons []string) {
	rm.documentsTotal.Inc(ctx,
		AttrVendor.String(vendor),
		AttrStatus.String("ROUTED"),
		AttrOutcome.String(outcome),
	)
	rm.routingConfidence.Record(ctx, confidence,
		AttrVendor.String(vendor),
		AttrOutcome.String(outcome),
	)
	for _, r := range reasons {
		rm.reasonCodesTotal.Inc(ctx,
			AttrReasonCode.String(r),
			AttrOutcome.String(outcome),
		)
	}
}

// RecordFailure records a document that stopped before routing.
// stage is the last stage the document reached.
func (rm *RoutingMetrics) RecordFailure(ctx context.Context, vendor, stage, errorCode string) {
	attrs := []attribute.KeyValue{
		AttrVendor.String(vendor),
		AttrStatus.String("FAILED"),
	}
	rm.documentsTotal.Inc(ctx, attrs...)
	rm.failuresTotal.Inc(ctx,
		AttrVendor.String(vendor),
		AttrStage.String(stage),
		AttrErrorCode.String(errorCode),
	)
	rm.logger.Debug("Recorded processing failure",
		zap.String("vendor", vendor),
		zap.String("stage", stage),
		zap.String("error_code", errorCode),
	)
}

// RecordDuplicate records an audit record skipped by the idempotency store.
func (rm *RoutingMetrics) RecordDuplicate(ctx context.Context, vendor string) {
	rm.duplicatesTotal.Inc(ctx, AttrVendor.String(vendor))
}

// RecordBatch records the shape of a completed batch.
func (rm *RoutingMetrics) RecordBatch(ctx context.Context, total, autoPosted int, d time.Duration) {
	rm.batchSize.Record(ctx, int64(total))
	rm.batchDuration.RecordDuration(ctx, d)
	if total > 0 {
		rm.autoPostRatio.Record(ctx, float64(autoPosted)/float64(total))
	}
}

// ErrMeterNil is returned when meter is nil.
var ErrMeterNil = &MetricsError{Op: "NewRoutingMetrics", Err: "meter cannot be nil"}

// MetricsError represents a metrics-related error.
type MetricsError struct {
	Op  string
	Err string
}

func (e *MetricsError) Error() string {
	return e.Op + ": " + e.Err
}

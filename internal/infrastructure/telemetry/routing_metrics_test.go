package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestNewRoutingMetrics(t *testing.T) {
	rm, err := NewRoutingMetrics(RoutingMetricsConfig{
		Meter: noop.NewMeterProvider().Meter("test"),
	})
	require.NoError(t, err)
	require.NotNil(t, rm)

	// noop meter must accept every call
	ctx := context.Background()
	rm.RecordStage(ctx, "vendor_a", "NORMALIZED", time.Millisecond)
	rm.RecordRouted(ctx, "vendor_a", "AUTO_POST", 0.9, nil)
	rm.RecordFailure(ctx, "vendor_a", "EXTRACTED", "NORMALIZATION_ERROR")
	rm.RecordDuplicate(ctx, "vendor_a")
	rm.RecordBatch(ctx, 0, 0, time.Second)
}

func TestNewRoutingMetrics_NilMeter(t *testing.T) {
	rm, err := NewRoutingMetrics(RoutingMetricsConfig{})
	require.Error(t, err)
	assert.Nil(t, rm)
	assert.Equal(t, "NewRoutingMetrics: meter cannot be nil", err.Error())
}

func TestRoutingMetrics_Recording(t *testing.T) {
	mp, reader := newTestMeter(t)
	rm, err := NewRoutingMetrics(RoutingMetricsConfig{Meter: mp.Meter(MeterName)})
	require.NoError(t, err)

	ctx := context.Background()
	rm.RecordRouted(ctx, "vendor_a", "AUTO_POST", 0.95, []string{"MISSING_PO"})
	rm.RecordRouted(ctx, "vendor_b", "NEEDS_REVIEW", 0.4, []string{"LOW_CONFIDENCE", "HIGH_TOTAL"})
	rm.RecordRouted(ctx, "vendor_b", "NEEDS_REVIEW", 0.5, []string{"LOW_CONFIDENCE"})
	rm.RecordFailure(ctx, "azure", "EXTRACTED", "NORMALIZATION_ERROR")
	rm.RecordStage(ctx, "vendor_a", "VALIDATED", 3*time.Millisecond)
	rm.RecordBatch(ctx, 4, 1, 2*time.Second)

	metrics := collect(t, reader)

	docs := metrics["invoice_documents_processed_total"]
	assert.Equal(t, int64(1), sumFor(t, docs, AttrOutcome.String("AUTO_POST")))
	assert.Equal(t, int64(2), sumFor(t, docs, AttrVendor.String("vendor_b"), AttrOutcome.String("NEEDS_REVIEW")))
	assert.Equal(t, int64(1), sumFor(t, docs, AttrStatus.String("FAILED")))
	assert.Equal(t, int64(4), sumFor(t, docs))

	reasons := metrics["invoice_routing_reason_codes_total"]
	assert.Equal(t, int64(2), sumFor(t, reasons, AttrReasonCode.String("LOW_CONFIDENCE")))
	assert.Equal(t, int64(1), sumFor(t, reasons, AttrReasonCode.String("MISSING_PO"), AttrOutcome.String("AUTO_POST")))

	failures := metrics["invoice_processing_failures_total"]
	assert.Equal(t, int64(1), sumFor(t, failures, AttrStage.String("EXTRACTED"), AttrErrorCode.String("NORMALIZATION_ERROR")))

	ratio, ok := metrics["invoice_batch_auto_post_ratio"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, ratio.DataPoints, 1)
	assert.Equal(t, 0.25, ratio.DataPoints[0].Value)

	conf, ok := metrics["invoice_routing_confidence"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range conf.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(3), count)
}

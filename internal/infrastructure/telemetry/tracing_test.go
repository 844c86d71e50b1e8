package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

func installRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestStartServiceSpan(t *testing.T) {
	sr := installRecorder(t)

	ctx, span := StartServiceSpan(context.Background(), "pipeline", "process",
		WithAttribute(SpanAttrDocID, "doc-1"),
		WithSpanKind(trace.SpanKindServer),
	)
	assert.True(t, trace.SpanContextFromContext(ctx).IsValid())

	SetAttributes(span, SpanAttrVendor, "vendor_a", 42, "ignored", SpanAttrReasonCodes, []string{"MISSING_PO"})
	AddEvent(span, "stage", SpanAttrStage, "NORMALIZED")
	SetOK(span)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "pipeline.process", s.Name())
	assert.Equal(t, trace.SpanKindServer, s.SpanKind())
	assert.Equal(t, codes.Ok, s.Status().Code)
	assert.Contains(t, s.Attributes(), attribute.String(SpanAttrDocID, "doc-1"))
	assert.Contains(t, s.Attributes(), attribute.String(SpanAttrVendor, "vendor_a"))
	assert.Contains(t, s.Attributes(), attribute.StringSlice(SpanAttrReasonCodes, []string{"MISSING_PO"}))
	require.Len(t, s.Events(), 1)
	assert.Equal(t, "stage", s.Events()[0].Name)
}

func TestRecordError(t *testing.T) {
	sr := installRecorder(t)

	_, span := StartSpan(context.Background(), "pipeline.normalize")
	RecordError(span, errors.New("bad document"))
	RecordError(span, nil)
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Equal(t, "bad document", ended[0].Status().Description)
}

func TestSpanHelpers_NilSpan(t *testing.T) {
	assert.NotPanics(t, func() {
		SetAttributes(nil, "k", "v")
		RecordError(nil, errors.New("x"))
		SetOK(nil)
		AddEvent(nil, "e")
	})
}

func TestToAttribute(t *testing.T) {
	assert.Equal(t, attribute.Int("n", 3), toAttribute("n", 3))
	assert.Equal(t, attribute.Int64("n", 3), toAttribute("n", int64(3)))
	assert.Equal(t, attribute.Float64("f", 0.5), toAttribute("f", 0.5))
	assert.Equal(t, attribute.Bool("b", true), toAttribute("b", true))
	assert.Equal(t, attribute.String("s", "[1 2]"), toAttribute("s", []int{1, 2}))
}

func TestNewTracerProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	tp, err := NewTracerProvider(ctx, TraceConfig{
		Exporter:      Exporter{CollectorEndpoint: "localhost:14317", ServiceName: "test-service"},
		SamplingRatio: 1.0,
	}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, tp.IsEnabled())
	assert.NotNil(t, tp.Tracer("test"))
	assert.NoError(t, tp.ForceFlush(ctx))
	assert.NoError(t, tp.Shutdown(ctx))
}

func TestExporterResource(t *testing.T) {
	res, err := Exporter{ServiceName: "invoice-router"}.resource()
	require.NoError(t, err)

	attrs := map[string]string{}
	for _, kv := range res.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "invoice-router", attrs["service.name"])
	assert.Equal(t, "unknown", attrs["service.version"])
}

func TestSamplerFor(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.5).Description(), "TraceIDRatioBased")
}

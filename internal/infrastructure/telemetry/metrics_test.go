package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// newTestMeter returns a meter backed by a manual reader so tests can
// inspect what was recorded.
func newTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	return mp, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumFor(t *testing.T, m metricdata.Metrics, attrs ...attribute.KeyValue) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)

	want := attribute.NewSet(attrs...)
	var total int64
	for _, dp := range sum.DataPoints {
		if matches(dp.Attributes, want) {
			total += dp.Value
		}
	}
	return total
}

// matches reports whether every attribute in want is present in got.
func matches(got, want attribute.Set) bool {
	iter := want.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		v, ok := got.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}

func TestNewMeterProvider_Disabled(t *testing.T) {
	ctx := context.Background()
	mp, err := NewMeterProvider(ctx, MetricsConfig{
		Exporter: Exporter{CollectorEndpoint: "localhost:14317", ServiceName: "test-service"},
	}, zap.NewNop())
	require.NoError(t, err)

	assert.False(t, mp.IsEnabled())
	assert.NotNil(t, mp.Meter("test"))
	assert.NoError(t, mp.ForceFlush(ctx))
	assert.NoError(t, mp.Shutdown(ctx))
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	var flushed, stopped int
	l := newLifecycle("test", nil)
	assert.False(t, l.IsEnabled())

	l.started(
		func(context.Context) error { stopped++; return nil },
		func(context.Context) error { flushed++; return nil },
	)
	assert.True(t, l.IsEnabled())
	require.NoError(t, l.ForceFlush(ctx))
	require.NoError(t, l.Shutdown(ctx))
	require.NoError(t, l.Shutdown(ctx))

	assert.Equal(t, 1, flushed)
	assert.Equal(t, 1, stopped)
	assert.False(t, l.IsEnabled())
}

func TestLifecycle_ShutdownError(t *testing.T) {
	l := newLifecycle("test", zap.NewNop())
	l.started(func(context.Context) error { return errors.New("collector gone") }, nil)

	err := l.Shutdown(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "test provider")
	assert.True(t, l.IsEnabled())
}

func TestInstrumentSet(t *testing.T) {
	mp, reader := newTestMeter(t)
	set := NewInstrumentSet(mp.Meter("test"))
	ctx := context.Background()

	counter := set.Counter(Instrument{Name: "test_counter", Description: "a counter", Unit: "{items}"})
	hist := set.Histogram(Instrument{Name: "test_histogram", Unit: "s", Buckets: StageDurationBuckets})
	gauge := set.Gauge(Instrument{Name: "test_gauge", Unit: "{items}"})
	fgauge := set.FloatGauge(Instrument{Name: "test_float_gauge", Unit: "1"})
	inflight := set.UpDownCounter(Instrument{Name: "test_inflight", Unit: "{items}"})
	require.NoError(t, set.Err())

	counter.Inc(ctx, AttrVendor.String("vendor_a"))
	counter.Add(ctx, 4, AttrVendor.String("vendor_a"))
	hist.Record(ctx, 0.002)
	gauge.Record(ctx, 7)
	fgauge.Record(ctx, 0.25)
	inflight.Add(ctx, 2)
	inflight.Add(ctx, -1)

	metrics := collect(t, reader)
	assert.Equal(t, int64(5), sumFor(t, metrics["test_counter"], AttrVendor.String("vendor_a")))

	h, ok := metrics["test_histogram"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, h.DataPoints, 1)
	assert.Equal(t, uint64(1), h.DataPoints[0].Count)

	g, ok := metrics["test_gauge"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, g.DataPoints, 1)
	assert.Equal(t, int64(7), g.DataPoints[0].Value)

	fg, ok := metrics["test_float_gauge"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, fg.DataPoints, 1)
	assert.Equal(t, 0.25, fg.DataPoints[0].Value)

	assert.Equal(t, int64(1), sumFor(t, metrics["test_inflight"]))
}

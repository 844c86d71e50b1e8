package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instrument describes one metric instrument. Buckets only apply to
// histograms.
type Instrument struct {
	Name        string
	Description string
	Unit        string
	Buckets     []float64
}

// InstrumentSet creates instruments on one meter and keeps the first
// creation error, so a constructor can declare all of its instruments and
// check Err once. Instruments requested after an error are nil.
type InstrumentSet struct {
	meter metric.Meter
	err   error
}

// NewInstrumentSet returns an InstrumentSet bound to meter
func NewInstrumentSet(meter metric.Meter) *InstrumentSet {
	return &InstrumentSet{meter: meter}
}

// Err returns the first instrument creation error
func (s *InstrumentSet) Err() error {
	return s.err
}

func (s *InstrumentSet) fail(kind string, in Instrument, err error) {
	s.err = fmt.Errorf("failed to create %s %s: %w", kind, in.Name, err)
}

// Counter is a monotonic int64 counter.
type Counter struct {
	counter metric.Int64Counter
}

// Counter creates a Counter
func (s *InstrumentSet) Counter(in Instrument) *Counter {
	if s.err != nil {
		return nil
	}
	c, err := s.meter.Int64Counter(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		s.fail("counter", in, err)
		return nil
	}
	return &Counter{counter: c}
}

// Add increments the counter by value.
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1.
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

// UpDownCounter is an int64 counter that can go down, e.g. requests in flight.
type UpDownCounter struct {
	counter metric.Int64UpDownCounter
}

// UpDownCounter creates an UpDownCounter
func (s *InstrumentSet) UpDownCounter(in Instrument) *UpDownCounter {
	if s.err != nil {
		return nil
	}
	c, err := s.meter.Int64UpDownCounter(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		s.fail("up-down counter", in, err)
		return nil
	}
	return &UpDownCounter{counter: c}
}

// Add changes the counter by delta.
func (c *UpDownCounter) Add(ctx context.Context, delta int64, attrs ...attribute.KeyValue) {
	c.counter.Add(ctx, delta, metric.WithAttributes(attrs...))
}

// Histogram records float64 distributions.
type Histogram struct {
	histogram metric.Float64Histogram
}

// Histogram creates a Histogram with the instrument's explicit buckets
func (s *InstrumentSet) Histogram(in Instrument) *Histogram {
	if s.err != nil {
		return nil
	}
	opts := []metric.Float64HistogramOption{
		metric.WithDescription(in.Description),
		metric.WithUnit(in.Unit),
	}
	if len(in.Buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(in.Buckets...))
	}
	h, err := s.meter.Float64Histogram(in.Name, opts...)
	if err != nil {
		s.fail("histogram", in, err)
		return nil
	}
	return &Histogram{histogram: h}
}

// Record records value.
func (h *Histogram) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	h.histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

// RecordDuration records d in seconds.
func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	h.Record(ctx, d.Seconds(), attrs...)
}

// Gauge records the latest int64 value.
type Gauge struct {
	gauge metric.Int64Gauge
}

// Gauge creates a Gauge
func (s *InstrumentSet) Gauge(in Instrument) *Gauge {
	if s.err != nil {
		return nil
	}
	g, err := s.meter.Int64Gauge(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		s.fail("gauge", in, err)
		return nil
	}
	return &Gauge{gauge: g}
}

// Record sets the gauge.
func (g *Gauge) Record(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

// FloatGauge records the latest float64 value.
type FloatGauge struct {
	gauge metric.Float64Gauge
}

// FloatGauge creates a FloatGauge
func (s *InstrumentSet) FloatGauge(in Instrument) *FloatGauge {
	if s.err != nil {
		return nil
	}
	g, err := s.meter.Float64Gauge(in.Name, metric.WithDescription(in.Description), metric.WithUnit(in.Unit))
	if err != nil {
		s.fail("float gauge", in, err)
		return nil
	}
	return &FloatGauge{gauge: g}
}

// Record sets the gauge.
func (g *FloatGauge) Record(ctx context.Context, value float64, attrs ...attribute.KeyValue) {
	g.gauge.Record(ctx, value, metric.WithAttributes(attrs...))
}

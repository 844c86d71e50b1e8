package middleware

import (
	"context"
	"time"

	"github.com/erp/invoicerouter/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetricsConfig holds configuration for HTTP metrics middleware.
type HTTPMetricsConfig struct {
	// MeterProvider is the OpenTelemetry meter provider.
	MeterProvider *telemetry.MeterProvider
	// Enabled controls whether metrics collection is active.
	Enabled bool
}

// httpMetrics holds all HTTP-related metrics instruments.
type httpMetrics struct {
	requestTotal    *telemetry.Counter
	requestDuration *telemetry.Histogram
	requestSize     *telemetry.Histogram
	activeRequests  *telemetry.UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	set := telemetry.NewInstrumentSet(meter)
	m := &httpMetrics{
		requestTotal: set.Counter(telemetry.Instrument{
			Name:        "http_server_request_total",
			Description: "Total number of HTTP requests",
			Unit:        "{request}",
		}),
		requestDuration: set.Histogram(telemetry.Instrument{
			Name:        "http_server_request_duration_seconds",
			Description: "HTTP request latency distribution in seconds",
			Unit:        "s",
			Buckets:     telemetry.HTTPDurationBuckets,
		}),
		requestSize: set.Histogram(telemetry.Instrument{
			Name:        "http_server_request_size_bytes",
			Description: "HTTP request body size distribution in bytes",
			Unit:        "By",
			Buckets:     telemetry.BodySizeBuckets,
		}),
		activeRequests: set.UpDownCounter(telemetry.Instrument{
			Name:        "http_server_active_requests",
			Description: "Number of currently active HTTP requests",
			Unit:        "{request}",
		}),
	}
	if err := set.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// HTTPMetrics returns a Gin middleware that collects HTTP metrics:
// - http_server_request_total: count by method, route, status_code
// - http_server_request_duration_seconds: latency by method, route
// - http_server_request_size_bytes: body size by method, route
// - http_server_active_requests: requests in flight
func HTTPMetrics(cfg HTTPMetricsConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.MeterProvider == nil || !cfg.MeterProvider.IsEnabled() {
		return passThrough
	}
	return HTTPMetricsWithMeter(cfg.MeterProvider.Meter("http.server"), true)
}

// HTTPMetricsWithMeter returns HTTP metrics middleware using an existing meter.
func HTTPMetricsWithMeter(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled || meter == nil {
		return passThrough
	}
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		return passThrough
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		requestSize := c.Request.ContentLength

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		recordHTTPMetrics(ctx, metrics, c.Request.Method, routePattern(c), c.Writer.Status(),
			time.Since(start), requestSize)
	}
}

func passThrough(c *gin.Context) {
	c.Next()
}

// routePattern returns the matched route (e.g. "/api/v1/documents/route")
// instead of the raw path to keep cardinality low.
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

func recordHTTPMetrics(
	ctx context.Context,
	metrics *httpMetrics,
	method, route string,
	statusCode int,
	duration time.Duration,
	requestSize int64,
) {
	metrics.requestTotal.Inc(ctx,
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
		telemetry.AttrHTTPStatusCode.Int(statusCode),
	)

	baseAttrs := []attribute.KeyValue{
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	}
	metrics.requestDuration.RecordDuration(ctx, duration, baseAttrs...)
	if requestSize > 0 {
		metrics.requestSize.Record(ctx, float64(requestSize), baseAttrs...)
	}
}

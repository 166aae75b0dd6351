package metrics

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type instruments struct {
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter
	httpRequestSize      metric.Int64Histogram
	httpResponseSize     metric.Int64Histogram
	downstreamCalls      metric.Int64Counter
	downstreamDuration   metric.Float64Histogram
}

var (
	mu   sync.RWMutex
	inst *instruments
)

// Init creates the instruments on the global meter provider. Recording
// functions are no-ops until Init succeeds.
func Init(serviceName string) error {
	meter := otel.Meter(serviceName)
	in := &instruments{}

	var err error
	if in.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if in.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if in.httpRequestsInFlight, err = meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently in flight"),
		metric.WithUnit("{request}"),
	); err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight gauge: %w", err)
	}

	if in.httpRequestSize, err = meter.Int64Histogram(
		"http_request_size_bytes",
		metric.WithDescription("HTTP request size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return fmt.Errorf("failed to create http_request_size_bytes histogram: %w", err)
	}

	if in.httpResponseSize, err = meter.Int64Histogram(
		"http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
		metric.WithUnit("By"),
	); err != nil {
		return fmt.Errorf("failed to create http_response_size_bytes histogram: %w", err)
	}

	if in.downstreamCalls, err = meter.Int64Counter(
		"downstream_calls_total",
		metric.WithDescription("Total number of downstream service calls"),
		metric.WithUnit("{call}"),
	); err != nil {
		return fmt.Errorf("failed to create downstream_calls_total counter: %w", err)
	}

	if in.downstreamDuration, err = meter.Float64Histogram(
		"downstream_call_duration_seconds",
		metric.WithDescription("Downstream service call duration in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("failed to create downstream_call_duration_seconds histogram: %w", err)
	}

	if _, err = meter.Int64ObservableGauge(
		"go_goroutines",
		metric.WithDescription("Number of goroutines currently running"),
		metric.WithUnit("{goroutine}"),
		metric.WithInt64Callback(func(_ context.Context, observer metric.Int64Observer) error {
			observer.Observe(int64(runtime.NumGoroutine()))
			return nil
		}),
	); err != nil {
		return fmt.Errorf("failed to create go_goroutines gauge: %w", err)
	}

	mu.Lock()
	inst = in
	mu.Unlock()
	return nil
}

func current() *instruments {
	mu.RLock()
	defer mu.RUnlock()
	return inst
}

// RecordHTTPRequest records an inbound HTTP request with its metrics
func RecordHTTPRequest(ctx context.Context, method, route string, statusCode int, duration time.Duration, requestSize, responseSize int64) {
	in := current()
	if in == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", statusCode),
	)

	in.httpRequestsTotal.Add(ctx, 1, attrs)
	in.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	if requestSize > 0 {
		in.httpRequestSize.Record(ctx, requestSize, attrs)
	}
	if responseSize > 0 {
		in.httpResponseSize.Record(ctx, responseSize, attrs)
	}
}

func IncrementInFlightRequests(ctx context.Context, method, route string) {
	addInFlight(ctx, method, route, 1)
}

func DecrementInFlightRequests(ctx context.Context, method, route string) {
	addInFlight(ctx, method, route, -1)
}

func addInFlight(ctx context.Context, method, route string, delta int64) {
	in := current()
	if in == nil {
		return
	}
	in.httpRequestsInFlight.Add(ctx, delta, metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	))
}

// RecordDownstreamCall records metrics for calls to downstream services
func RecordDownstreamCall(ctx context.Context, serviceName string, duration time.Duration, success bool) {
	in := current()
	if in == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("service.name", serviceName),
		attribute.Bool("success", success),
	)
	in.downstreamCalls.Add(ctx, 1, attrs)
	in.downstreamDuration.Record(ctx, duration.Seconds(), attrs)
}

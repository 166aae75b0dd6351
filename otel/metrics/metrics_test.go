package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordingBeforeInitIsNoop(t *testing.T) {
	mu.Lock()
	inst = nil
	mu.Unlock()

	assert.NotPanics(t, func() {
		RecordDownstreamCall(context.Background(), "backend", time.Second, true)
		RecordHTTPRequest(context.Background(), "GET", "/api/backend/*", 200, time.Second, 1, 1)
		IncrementInFlightRequests(context.Background(), "GET", "/api/backend/*")
	})
}

func TestRecordDownstreamCall(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	require.NoError(t, Init("mmm-dashboard-test"))

	ctx := context.Background()
	RecordDownstreamCall(ctx, "backend", 150*time.Millisecond, true)
	RecordDownstreamCall(ctx, "backend", 10*time.Millisecond, false)
	RecordHTTPRequest(ctx, "POST", "/api/backend/*", 201, 200*time.Millisecond, 512, 64)
	IncrementInFlightRequests(ctx, "POST", "/api/backend/*")
	DecrementInFlightRequests(ctx, "POST", "/api/backend/*")

	got := collect(t, reader)

	calls, ok := got["downstream_calls_total"]
	require.True(t, ok)
	sum, ok := calls.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)

	assert.Contains(t, got, "http_requests_total")
	assert.Contains(t, got, "http_request_size_bytes")
	assert.Contains(t, got, "http_requests_in_flight")
}

package database

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(context.Background())
		otel.SetTracerProvider(prev)
	})
	return exporter
}

func spanAttr(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestTraceQuery_Success(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), SystemPostgres, "GetSnapshot", "SELECT payload FROM cart_snapshots WHERE key = $1")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "db.GetSnapshot", spans[0].Name)
	assert.Equal(t, "postgresql", spanAttr(spans[0].Attributes, "db.system"))
	assert.Equal(t, "GetSnapshot", spanAttr(spans[0].Attributes, "db.operation"))
	assert.Equal(t, codes.Unset, spans[0].Status.Code)
}

func TestTraceQuery_RedisSystem(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), SystemRedis, "SetSnapshot", "SET")
	end(nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "redis", spanAttr(spans[0].Attributes, "db.system"))
}

func TestTraceQuery_Error(t *testing.T) {
	exporter := setupTestTracer(t)

	_, end := TraceQuery(context.Background(), SystemPostgres, "SetSnapshot", "INSERT")
	end(errors.New("connection refused"))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.NotEmpty(t, spans[0].Events)
}

func TestSlowQueryLogging(t *testing.T) {
	setupTestTracer(t)
	t.Cleanup(func() { SetSlowQueryLogging(0, nil) })

	tests := []struct {
		name      string
		threshold time.Duration
		err       error
		wantLog   bool
	}{
		{name: "slow", threshold: time.Nanosecond, wantLog: true},
		{name: "slow with error", threshold: time.Nanosecond, err: errors.New("unique constraint violation"), wantLog: true},
		{name: "fast", threshold: time.Hour, wantLog: false},
		{name: "disabled", threshold: 0, wantLog: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			SetSlowQueryLogging(tt.threshold, slog.New(slog.NewJSONHandler(&buf, nil)))

			_, end := TraceQuery(context.Background(), SystemPostgres, "ListKeys", "SELECT key FROM cart_snapshots")
			end(tt.err)

			out := buf.String()
			if !tt.wantLog {
				assert.NotContains(t, out, "slow query detected")
				return
			}
			assert.Contains(t, out, "slow query detected")
			assert.Contains(t, out, "ListKeys")
			assert.Contains(t, out, "SELECT key FROM cart_snapshots")
			if tt.err != nil {
				assert.Contains(t, out, tt.err.Error())
			}
		})
	}
}

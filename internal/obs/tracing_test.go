package obs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/noah-isme/backend-invoice/internal/obs"
)

func TestInitTracerNoneExporter(t *testing.T) {
	shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{ServiceName: "invoice-edge", Exporter: "none"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
}

func TestEndSpanRecordsError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(previous) })

	_, span := obs.StartSpan(context.Background(), "offline.install")
	obs.EndSpan(span, errors.New("shell /index.html: unexpected status 503"))

	_, ok := obs.StartSpan(context.Background(), "offline.activate")
	obs.EndSpan(ok, nil)

	ended := recorder.Ended()
	require.Len(t, ended, 2)
	require.Equal(t, "offline.install", ended[0].Name())
	require.Equal(t, codes.Error, ended[0].Status().Code)
	require.Len(t, ended[0].Events(), 1)
	require.Equal(t, codes.Unset, ended[1].Status().Code)
}

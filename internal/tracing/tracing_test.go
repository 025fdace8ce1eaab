package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestInit_WithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Options{ServiceName: "astral-test", SampleRatio: 0.1})
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	_, span := Tracer("test").Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, shutdown(context.Background()))
	assert.NoError(t, shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(0).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(-2).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased{0.25}")
}

func TestStartChainSpan_AndEndWithError(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	_, ok := StartChainSpan(context.Background(), "ingester", "processChain", "base")
	EndWithError(ok, nil)
	_, failed := StartChainSpan(context.Background(), "reconciliation", "verify", "sepolia")
	EndWithError(failed, errors.New("fetch exhausted"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "ingester.processChain", spans[0].Name())
	assert.Equal(t, codes.Unset, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), ChainAttr("base"))

	assert.Equal(t, "reconciliation.verify", spans[1].Name())
	assert.Equal(t, codes.Error, spans[1].Status().Code)
	assert.Equal(t, "fetch exhausted", spans[1].Status().Description)
	assert.Equal(t, trace.SpanKindInternal, spans[1].SpanKind())
}

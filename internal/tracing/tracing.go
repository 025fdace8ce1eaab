package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const chainKey = attribute.Key("astral.chain")

// Options configures the OTLP exporter. An empty Endpoint disables export.
type Options struct {
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRatio float64
}

// ShutdownFunc flushes buffered spans.
type ShutdownFunc func(context.Context) error

// Init installs the global tracer provider and propagators.
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	if opts.Endpoint == "" {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	clientOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(opts.Endpoint)}
	if opts.Insecure {
		clientOpts = append(clientOpts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(opts.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(opts.SampleRatio)),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	return provider.Shutdown, nil
}

// sampler keeps parent decisions and samples new roots at ratio. Ratios
// outside (0, 1] sample every root.
func sampler(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// ChainAttr tags a span with the chain it works on.
func ChainAttr(chain string) attribute.KeyValue {
	return chainKey.String(chain)
}

// StartChainSpan opens "<component>.<op>" tagged with chain.
func StartChainSpan(ctx context.Context, component, op, chain string) (context.Context, trace.Span) {
	return Tracer(component).Start(ctx, component+"."+op, trace.WithAttributes(ChainAttr(chain)))
}

// EndWithError marks span failed when err is non-nil, then ends it.
func EndWithError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package telemetry

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

/*
JAEGER TRACING

  relay → OpenTelemetry SDK → Jaeger exporter → collector → Jaeger UI

Until a provider is installed the global tracer is a no-op, so spans started
by the middleware and the relay cost nothing when tracing is off.
*/

// Shutdown flushes and stops a tracer provider.
type Shutdown func(context.Context) error

func noop(context.Context) error { return nil }

// Init installs the Jaeger tracer provider when enabled. The returned
// Shutdown is always safe to call.
func Init(serviceName, jaegerEndpoint string, enabled bool) (Shutdown, error) {
	if !enabled {
		log.Println("  Tracing disabled")
		return noop, nil
	}
	return InitJaeger(serviceName, jaegerEndpoint)
}

// InitJaeger initializes the Jaeger exporter and sets the global provider.
func InitJaeger(serviceName, jaegerEndpoint string) (Shutdown, error) {
	exp, err := jaeger.New(
		jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(jaegerEndpoint)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		// schemaless: the sdk default resource carries its own schema url
		resource.NewSchemaless(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		// follow the caller, sample a tenth of root traces
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.1))),
	)
	otel.SetTracerProvider(tp)

	log.Printf("✓ Jaeger tracing initialized: %s", jaegerEndpoint)
	return tp.Shutdown, nil
}

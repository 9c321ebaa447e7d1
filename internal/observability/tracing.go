package observability

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Shutdown releases telemetry resources.
type Shutdown func(ctx context.Context) error

// SetupTracing installs an OTLP/HTTP tracer provider when an endpoint is configured.
// Without one the global no-op provider stays in place.
func SetupTracing(ctx context.Context, endpoint, serviceName string) (Shutdown, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		log.Info().Msg("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracehttp.Option{}
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter: %w", err)
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	log.Info().Str("endpoint", endpoint).Msg("tracing enabled")
	return tp.Shutdown, nil
}

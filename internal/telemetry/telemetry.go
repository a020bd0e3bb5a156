package telemetry

import (
	"context"
	"os"

	"qms/patient-client/internal/logging"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Version is reported as service.version on exported spans.
var Version = "dev"

type shutdownFunc = func(context.Context) error

func noop(context.Context) error { return nil }

// Setup installs a batching OTLP trace provider and W3C trace-context
// propagation when OTEL_EXPORTER_OTLP_ENDPOINT is set. Without an endpoint it
// leaves the global no-op provider in place. The returned func flushes spans.
func Setup(serviceName string, log *logging.Logger) shutdownFunc {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return noop
	}
	entry := log.WithComponent("telemetry").WithField("endpoint", endpoint)

	ctx := context.Background()
	exporter, err := otlptracegrpc.New(ctx, exporterOptions(endpoint)...)
	if err != nil {
		entry.WithError(err).Warn("tracing disabled")
		return noop
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(Version),
		),
	)
	if err != nil {
		entry.WithError(err).Warn("trace resource incomplete")
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	entry.Info("tracing enabled")
	return provider.Shutdown
}

func exporterOptions(endpoint string) []otlptracegrpc.Option {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true" {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return opts
}

// Package tracing configures OpenTelemetry for PaySentry.
package tracing

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/paysentry/internal/domain"
)

const tracerName = "github.com/opensource-finance/paysentry"

// Init installs a tracer provider exporting over OTLP gRPC.
// When tracing is disabled or no endpoint is set, the global no-op provider is kept.
// The returned function flushes and stops the provider.
func Init(ctx context.Context, cfg domain.TracingConfig, version string, logger *slog.Logger) (func(context.Context) error, error) {
	if !cfg.Enabled || cfg.Endpoint == "" {
		logger.Info("tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "paysentry"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", cfg.Endpoint)
	return tp.Shutdown, nil
}

// StartSpan starts a span on the PaySentry tracer.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

func UserID(id string) attribute.KeyValue {
	return attribute.String("user.id", id)
}

func ScanID(id string) attribute.KeyValue {
	return attribute.String("scan.id", id)
}

func RiskLevel(level domain.RiskLevel) attribute.KeyValue {
	return attribute.String("risk.level", string(level))
}

package monitoring

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/tixgo/tix-booking/pkg/applogger"
)

type OpenTelemetry struct {
	serviceName  string
	environment  string
	otlpEndpoint string
	provider     *sdktrace.TracerProvider
}

func NewOpenTelemetry(serviceName, environment, otlpEndpoint string) *OpenTelemetry {
	return &OpenTelemetry{
		serviceName:  serviceName,
		environment:  environment,
		otlpEndpoint: otlpEndpoint,
	}
}

func (m *OpenTelemetry) Start(ctx context.Context) {
	logger := applogger.GetLogrus()

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(m.otlpEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.WithError(err).Error("unable to create otlp trace exporter")
		return
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(m.serviceName),
			semconv.DeploymentEnvironment(m.environment),
		),
	)
	if err != nil {
		logger.WithError(err).Error("unable to build otel resource")
		return
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
}

func (m *OpenTelemetry) Stop(ctx context.Context) {
	if m.provider == nil {
		return
	}

	if err := m.provider.Shutdown(ctx); err != nil {
		applogger.GetLogrus().WithError(err).Error("unable to shut down tracer provider")
	}
}

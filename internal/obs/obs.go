// Package obs provides OpenTelemetry span helpers for this process
// itself (not the CTF trace data being decoded): StartRotation for a
// graph scheduler rotation and StartDecode for a packet decode, adapted
// from the retrieval pack's TracingManager. The graph and the CTF
// iterator do not call these helpers. It is deliberately not named "trace" to avoid
// colliding with the CTF-domain meaning of that word used everywhere
// else in this module.
package obs

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"ssw-trace-core/internal/config"
)

// Tracer wraps an OTel tracer and its provider's lifecycle. A disabled
// Tracer hands out a no-op tracer so callers never need to branch on
// whether tracing is configured.
type Tracer struct {
	cfg      config.TracingConfig
	logger   *logrus.Logger
	provider *sdktrace.TracerProvider
	tracer   oteltrace.Tracer
}

// New builds a Tracer. When cfg.Enabled is false, every span it starts
// is a no-op and New never touches the network.
func New(cfg config.TracingConfig, serviceName, serviceVersion string, logger *logrus.Logger) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{cfg: cfg, logger: logger, tracer: otel.Tracer("noop")}, nil
	}

	t := &Tracer{cfg: cfg, logger: logger}

	exporter, err := t.newExporter()
	if err != nil {
		return nil, fmt.Errorf("obs: failed to create span exporter: %w", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("obs: failed to build resource: %w", err)
	}

	t.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
	)
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))
	t.tracer = otel.Tracer(serviceName)

	logger.WithFields(logrus.Fields{
		"exporter":    cfg.Exporter,
		"endpoint":    cfg.Endpoint,
		"sample_rate": cfg.SampleRate,
	}).Info("tracing initialized")

	return t, nil
}

func (t *Tracer) newExporter() (sdktrace.SpanExporter, error) {
	switch t.cfg.Exporter {
	case "jaeger":
		return jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(t.cfg.Endpoint)))
	case "otlp":
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(otlptracehttp.WithEndpoint(t.cfg.Endpoint)))
	case "console":
		return otlptrace.New(context.Background(), otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(t.cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		))
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", t.cfg.Exporter)
	}
}

// StartRotation starts a span around one graph scheduler rotation.
func (t *Tracer) StartRotation(ctx context.Context) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "graph.run_rotation")
}

// StartDecode starts a span around one packet's decode.
func (t *Tracer) StartDecode(ctx context.Context, streamClassID uint64) (context.Context, oteltrace.Span) {
	return t.tracer.Start(ctx, "ctfiter.decode_packet", oteltrace.WithAttributes())
}

// Shutdown flushes and stops the tracer provider. A no-op Tracer has
// nothing to flush.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// Package trace wires OpenTelemetry tracing for the control loop and script
// bindings. Tracing is off unless TRACE_EXPORTER selects an exporter.
package trace

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName names the tracer every musicbind span comes from.
const TracerName = "github.com/realtime-ai/musicbind"

// Exporters selectable through TRACE_EXPORTER.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
)

var (
	mu       sync.RWMutex
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
)

// Config selects where spans go.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Exporter is one of ExporterNone, ExporterStdout or ExporterOTLP.
	// With ExporterNone spans still carry IDs for log correlation but are
	// never exported.
	Exporter string
	// OTLPEndpoint is the collector address used by ExporterOTLP.
	OTLPEndpoint string
	// SamplingRate is the share of root spans kept, in [0, 1].
	SamplingRate float64
}

// DefaultConfig reads TRACE_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT and
// TRACE_SAMPLING_RATE.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "musicbind",
		ServiceVersion: "0.1.0",
		Exporter:       getEnv("TRACE_EXPORTER", ExporterNone),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		SamplingRate:   getEnvFloat("TRACE_SAMPLING_RATE", 1.0),
	}
}

// Initialize installs the global tracer provider. opts are appended to the
// provider options, so callers can attach extra span processors.
func Initialize(ctx context.Context, cfg *Config, opts ...sdktrace.TracerProviderOption) error {
	mu.Lock()
	defer mu.Unlock()

	if provider != nil {
		return fmt.Errorf("tracer provider already initialized")
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return err
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	all := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
	}
	if exporter != nil {
		all = append(all, sdktrace.WithBatcher(exporter))
	}
	all = append(all, opts...)

	provider = sdktrace.NewTracerProvider(all...)
	otel.SetTracerProvider(provider)
	tracer = provider.Tracer(TracerName)

	log.Printf("tracing initialized, exporter %s", cfg.Exporter)
	return nil
}

// newExporter returns nil for ExporterNone.
func newExporter(ctx context.Context, cfg *Config) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case ExporterNone:
		return nil, nil
	case ExporterStdout:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterOTLP:
		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlptracegrpc.WithInsecure(),
		))
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter %q", cfg.Exporter)
	}
}

// Shutdown flushes and removes the provider. It is a no-op when tracing was
// never initialized.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	if provider == nil {
		return nil
	}
	err := provider.Shutdown(ctx)
	provider = nil
	tracer = nil
	if err != nil {
		return fmt.Errorf("failed to shutdown tracer provider: %w", err)
	}
	return nil
}

// Tracer returns the musicbind tracer, or the global no-op one before
// Initialize.
func Tracer() trace.Tracer {
	mu.RLock()
	defer mu.RUnlock()

	if tracer == nil {
		return otel.Tracer(TracerName)
	}
	return tracer
}

// StartSpan starts a span from Tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warnf("invalid %s=%q, using %v", key, value, defaultValue)
	}
	return defaultValue
}

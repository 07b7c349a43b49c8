// Package telemetry wires OpenTelemetry tracing and run metrics.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
)

// Telemetry records analysis run metrics
type Telemetry interface {
	RecordRun(mode string, duration time.Duration, success bool)
	RecordParams(location string, count int)
	RecordEdges(count int)
	Close() error
}

type telemetry struct {
	tracer         trace.Tracer
	meter          metric.Meter
	tracerProvider *sdktrace.TracerProvider

	runCounter   metric.Int64Counter
	runDuration  metric.Float64Histogram
	paramCounter metric.Int64Counter
	edgeCounter  metric.Int64Counter
}

func New(ctx context.Context, cfg config.TelemetryConfig, version string) (Telemetry, error) {
	if !cfg.Enabled || cfg.ExporterType == "none" {
		return Noop(), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdktrace.SpanExporter

	switch cfg.ExporterType {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(cfg.Endpoint),
			otlptracehttp.WithInsecure(),
		)
		exp, err := otlptrace.New(ctx, client)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		exporter = exp
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", cfg.ExporterType)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SampleRate)),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t := &telemetry{
		tracer:         tp.Tracer(cfg.ServiceName),
		meter:          otel.Meter(cfg.ServiceName),
		tracerProvider: tp,
	}
	if err := t.instruments(); err != nil {
		_ = tp.Shutdown(ctx)
		return nil, err
	}
	return t, nil
}

func (t *telemetry) instruments() error {
	var err error

	t.runCounter, err = t.meter.Int64Counter("paramflow.runs.total",
		metric.WithDescription("Total number of analysis runs"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	t.runDuration, err = t.meter.Float64Histogram("paramflow.run.duration",
		metric.WithDescription("Analysis run duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	t.paramCounter, err = t.meter.Int64Counter("paramflow.params.correlated",
		metric.WithDescription("Correlated parameters produced"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}

	t.edgeCounter, err = t.meter.Int64Counter("paramflow.edges.inferred",
		metric.WithDescription("Provenance edges inferred"),
		metric.WithUnit("1"),
	)
	return err
}

func (t *telemetry) RecordRun(mode string, duration time.Duration, success bool) {
	ctx := context.Background()

	attrs := []attribute.KeyValue{
		attribute.String("run.track_mode", mode),
		attribute.Bool("run.success", success),
	}

	t.runCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	t.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

func (t *telemetry) RecordParams(location string, count int) {
	t.paramCounter.Add(context.Background(), int64(count),
		metric.WithAttributes(attribute.String("param.location", location)))
}

func (t *telemetry) RecordEdges(count int) {
	t.edgeCounter.Add(context.Background(), int64(count))
}

func (t *telemetry) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.tracerProvider.Shutdown(ctx)
}

type noopTelemetry struct{}

// Noop discards everything
func Noop() Telemetry { return noopTelemetry{} }

func (noopTelemetry) RecordRun(string, time.Duration, bool) {}
func (noopTelemetry) RecordParams(string, int)              {}
func (noopTelemetry) RecordEdges(int)                       {}
func (noopTelemetry) Close() error                          { return nil }

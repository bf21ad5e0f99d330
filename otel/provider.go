// Package otel wires up the OTLP metric and log providers this scraper
// exports through (spec.md §6). Every source gets its own Provider with
// resource attribute service.name = source.name; self telemetry gets one
// with service.name = scraper.serviceName. Transport switches between
// gRPC (port 4317) and HTTP/protobuf (port 4318); dryRun substitutes a
// stderr exporter so no network export occurs.
package otel

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config selects the OTLP destination and transport for one resource.
type Config struct {
	CollectorEndpoint string
	Transport         string // grpc|http
	DryRun            bool
	ServiceName       string
}

// Provider bundles the meter, logger, and tracer providers backing one
// resource. Tracer is used for the short-lived span the engine opens
// around each scrape tick (spec.md §4.8's self telemetry).
type Provider struct {
	Meter  *sdkmetric.MeterProvider
	Logger *sdklog.LoggerProvider
	Tracer *sdktrace.TracerProvider
}

// New builds a Provider for cfg.ServiceName. Callers construct one per
// source (and one for self telemetry) so each carries its own
// service.name resource attribute.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("otel: build resource for %q: %w", cfg.ServiceName, err)
	}

	if cfg.DryRun {
		return &Provider{
			Meter: sdkmetric.NewMeterProvider(
				sdkmetric.WithReader(sdkmetric.NewPeriodicReader(&stderrMetricExporter{service: cfg.ServiceName})),
				sdkmetric.WithResource(res),
			),
			Logger: sdklog.NewLoggerProvider(
				sdklog.WithProcessor(sdklog.NewBatchProcessor(&stderrLogExporter{service: cfg.ServiceName})),
				sdklog.WithResource(res),
			),
			Tracer: sdktrace.NewTracerProvider(sdktrace.WithResource(res)),
		}, nil
	}

	metricExp, err := newMetricExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: metric exporter for %q: %w", cfg.ServiceName, err)
	}
	logExp, err := newLogExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: log exporter for %q: %w", cfg.ServiceName, err)
	}
	traceExp, err := newTraceExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("otel: trace exporter for %q: %w", cfg.ServiceName, err)
	}

	return &Provider{
		Meter:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)), sdkmetric.WithResource(res)),
		Logger: sdklog.NewLoggerProvider(sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)), sdklog.WithResource(res)),
		Tracer: sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res)),
	}, nil
}

func newTraceExporter(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
	switch cfg.Transport {
	case "http":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.CollectorEndpoint), otlptracehttp.WithInsecure())
	case "grpc", "":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(cfg.CollectorEndpoint), otlptracegrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown otelTransport %q", cfg.Transport)
	}
}

func newMetricExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.Transport {
	case "http":
		return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.CollectorEndpoint), otlpmetrichttp.WithInsecure())
	case "grpc", "":
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(cfg.CollectorEndpoint), otlpmetricgrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown otelTransport %q", cfg.Transport)
	}
}

func newLogExporter(ctx context.Context, cfg Config) (sdklog.Exporter, error) {
	switch cfg.Transport {
	case "http":
		return otlploghttp.New(ctx, otlploghttp.WithEndpoint(cfg.CollectorEndpoint), otlploghttp.WithInsecure())
	case "grpc", "":
		return otlploggrpc.New(ctx, otlploggrpc.WithEndpoint(cfg.CollectorEndpoint), otlploggrpc.WithInsecure())
	default:
		return nil, fmt.Errorf("unknown otelTransport %q", cfg.Transport)
	}
}

// Shutdown flushes and closes all three providers. Safe to call on a
// partially built Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.Meter != nil {
		if e := p.Meter.Shutdown(ctx); e != nil {
			err = e
		}
	}
	if p.Logger != nil {
		if e := p.Logger.Shutdown(ctx); e != nil {
			err = e
		}
	}
	if p.Tracer != nil {
		if e := p.Tracer.Shutdown(ctx); e != nil {
			err = e
		}
	}
	return err
}

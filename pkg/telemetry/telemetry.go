// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry instrumentation for the gateway:
// OTLP trace and metric export, an optional Prometheus /metrics handler, and
// the HTTP middleware that produces one span and one set of metric points per
// request.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/bluebridge-dev/bluebridge/pkg/logger"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// Endpoint is the OTLP endpoint, host:port. Empty disables OTLP export.
	Endpoint string `json:"endpoint"`

	// ServiceName identifies the service in exported telemetry.
	ServiceName string `json:"service_name"`

	// ServiceVersion identifies the build.
	ServiceVersion string `json:"service_version"`

	// TracingEnabled controls whether spans are exported over OTLP.
	TracingEnabled bool `json:"tracing_enabled"`

	// MetricsEnabled controls whether metrics are exported over OTLP.
	MetricsEnabled bool `json:"metrics_enabled"`

	// SamplingRate is the trace sampling ratio, 0.0 to 1.0.
	SamplingRate float64 `json:"sampling_rate"`

	// Headers are sent with OTLP requests, typically for authentication.
	Headers map[string]string `json:"headers"`

	// Insecure uses plain HTTP for the OTLP endpoint.
	Insecure bool `json:"insecure"`

	// EnablePrometheusMetricsPath exposes the metrics on /metrics in
	// Prometheus text format, independent of OTLP export.
	EnablePrometheusMetricsPath bool `json:"enable_prometheus_metrics_path"`
}

// DefaultConfig returns the default telemetry configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:                 "bluebridge",
		ServiceVersion:              "dev",
		TracingEnabled:              true,
		MetricsEnabled:              true,
		SamplingRate:                0.05,
		Headers:                     map[string]string{},
		EnablePrometheusMetricsPath: true,
	}
}

// Provider holds the configured OpenTelemetry providers.
type Provider struct {
	config            Config
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	prometheusHandler http.Handler
	shutdownFuncs     []func(context.Context) error
}

// NewProvider builds tracer and meter providers from the configuration and
// installs them as the process globals, together with W3C TraceContext
// propagation. A config with no endpoint and no Prometheus path yields no-op
// providers.
func NewProvider(ctx context.Context, config Config) (*Provider, error) {
	if config.Endpoint != "" && !config.TracingEnabled && !config.MetricsEnabled {
		return nil, fmt.Errorf("OTLP endpoint is configured but both tracing and metrics are disabled")
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("creating telemetry resource: %w", err)
	}

	p := &Provider{config: config}

	if err := p.setupTracing(ctx, res); err != nil {
		return nil, err
	}
	if err := p.setupMetrics(ctx, res); err != nil {
		return nil, err
	}

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetMeterProvider(p.meterProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return p, nil
}

func (p *Provider) setupTracing(ctx context.Context, res *resource.Resource) error {
	if !p.config.TracingEnabled || p.config.Endpoint == "" {
		p.tracerProvider = tracenoop.NewTracerProvider()
		return nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(p.config.Endpoint)}
	if len(p.config.Headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(p.config.Headers))
	}
	if p.config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return fmt.Errorf("creating trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(p.config.SamplingRate)),
	)
	p.tracerProvider = provider
	p.shutdownFuncs = append(p.shutdownFuncs, provider.Shutdown)
	return nil
}

func (p *Provider) setupMetrics(ctx context.Context, res *resource.Resource) error {
	var readers []sdkmetric.Reader

	if p.config.MetricsEnabled && p.config.Endpoint != "" {
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(p.config.Endpoint)}
		if len(p.config.Headers) > 0 {
			opts = append(opts, otlpmetrichttp.WithHeaders(p.config.Headers))
		}
		if p.config.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err := otlpmetrichttp.New(ctx, opts...)
		if err != nil {
			return fmt.Errorf("creating metric exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(exporter))
	}

	if p.config.EnablePrometheusMetricsPath {
		registry := prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
		if err != nil {
			return fmt.Errorf("creating prometheus exporter: %w", err)
		}
		readers = append(readers, exporter)
		p.prometheusHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	if len(readers) == 0 {
		logger.Infof("No metric export configured, using no-op meter provider")
		p.meterProvider = metricnoop.NewMeterProvider()
		return nil
	}

	providerOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(r))
	}
	provider := sdkmetric.NewMeterProvider(providerOpts...)
	p.meterProvider = provider
	p.shutdownFuncs = append(p.shutdownFuncs, provider.Shutdown)
	return nil
}

// TracerProvider returns the configured tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider {
	return p.tracerProvider
}

// MeterProvider returns the configured meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider {
	return p.meterProvider
}

// PrometheusHandler returns the /metrics handler, or nil when the Prometheus
// path is disabled.
func (p *Provider) PrometheusHandler() http.Handler {
	return p.prometheusHandler
}

// Shutdown flushes and stops all providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	for _, shutdown := range p.shutdownFuncs {
		if err := shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("telemetry shutdown failed: %v", errs)
	}
	return nil
}

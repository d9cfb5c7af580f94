// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/bluebridge-dev/bluebridge/pkg/telemetry"

// HTTPMiddleware instruments requests with one span and the standard server
// metrics. Tracing and metrics are separate middlewares so the pipeline can
// order them independently.
type HTTPMiddleware struct {
	tracer trace.Tracer
	meter  metric.Meter

	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram
	activeRequests  metric.Int64UpDownCounter
	errorCounter    metric.Int64Counter
}

// NewHTTPMiddleware creates the middleware from the provider's tracer and
// meter.
func NewHTTPMiddleware(tracerProvider trace.TracerProvider, meterProvider metric.MeterProvider) *HTTPMiddleware {
	meter := meterProvider.Meter(instrumentationName)

	// The exporter appends the _total and _seconds suffixes.
	requestCounter, _ := meter.Int64Counter(
		"http_server_requests",
		metric.WithDescription("Total number of HTTP requests"),
	)
	requestDuration, _ := meter.Float64Histogram(
		"http_server_request_duration",
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	activeRequests, _ := meter.Int64UpDownCounter(
		"http_server_active_requests",
		metric.WithDescription("Number of in-flight HTTP requests"),
	)
	errorCounter, _ := meter.Int64Counter(
		"http_server_errors",
		metric.WithDescription("Total number of HTTP responses with non-2xx status"),
	)

	return &HTTPMiddleware{
		tracer:          tracerProvider.Tracer(instrumentationName),
		meter:           meter,
		requestCounter:  requestCounter,
		requestDuration: requestDuration,
		activeRequests:  activeRequests,
		errorCounter:    errorCounter,
	}
}

// Trace opens a span per request, continuing any inbound W3C trace context.
func (m *HTTPMiddleware) Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := m.tracer.Start(ctx, fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.RequestURI()),
			),
		)
		defer span.End()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))

		span.SetAttributes(
			attribute.Int("http.status_code", sw.status),
			attribute.Float64("http.duration_ms", float64(time.Since(start).Microseconds())/1000),
		)
		if sw.status >= 400 {
			span.SetStatus(codes.Error, http.StatusText(sw.status))
		}
	})
}

// Metrics records the request counters and duration histogram, labeled by
// method, matched route pattern and status class.
func (m *HTTPMiddleware) Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		m.activeRequests.Add(ctx, 1)
		defer m.activeRequests.Add(ctx, -1)

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		attrs := metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
			attribute.Int("status", sw.status),
		)
		m.requestCounter.Add(ctx, 1, attrs)
		m.requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if sw.status < 200 || sw.status >= 300 {
			m.errorCounter.Add(ctx, 1, attrs)
		}
	})
}

// statusWriter captures the response status for span attributes and metric
// labels.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.written = true
	return w.ResponseWriter.Write(b)
}

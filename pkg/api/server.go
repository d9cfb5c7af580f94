// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package api assembles the HTTP server for the gateway.
package api

import (
	"context"
	goerrors "errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	v1 "github.com/bluebridge-dev/bluebridge/pkg/api/v1"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/ratelimit"
	"github.com/bluebridge-dev/bluebridge/pkg/telemetry"
)

const (
	middlewareTimeout = 60 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// Config carries everything the router assembly needs.
type Config struct {
	Deps      v1.Deps
	Limiter   *ratelimit.Limiter
	Tokens    *oauth.Service
	Telemetry *telemetry.Provider
}

// NewRouter builds the full middleware chain and mounts every route group.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(
		recoverer,
		middleware.RequestID,
		middleware.Timeout(middlewareTimeout),
	)
	if cfg.Limiter != nil {
		r.Use(rateLimitMiddleware(cfg.Limiter, cfg.Tokens))
	}
	if cfg.Telemetry != nil {
		otel := telemetry.NewHTTPMiddleware(cfg.Telemetry.TracerProvider(), cfg.Telemetry.MeterProvider())
		r.Use(otel.Trace, otel.Metrics)
	}
	r.Use(requestLogger, bodyLimiter)

	routers := map[string]http.Handler{
		"/health":               v1.HealthRouter(),
		"/oauth":                v1.OAuthRouter(cfg.Deps),
		"/api/v1/apps":          v1.AppsRouter(cfg.Deps),
		"/api/v1/instance":      v1.InstanceRouter(cfg.Deps),
		"/api/v2/instance":      v1.InstanceV2Router(cfg.Deps),
		"/api/v1/accounts":      v1.AccountRouter(cfg.Deps),
		"/api/v1/statuses":      v1.StatusRouter(cfg.Deps),
		"/api/v1/timelines":     v1.TimelineRouter(cfg.Deps),
		"/api/v1/notifications": v1.NotificationRouter(cfg.Deps),
		"/api/v1/media":         v1.MediaRouter(cfg.Deps),
		"/api/v2/media":         v1.MediaRouter(cfg.Deps),
		"/api/v2/search":        v1.SearchRouter(cfg.Deps),
		"/api/v1":               v1.MiscRouter(cfg.Deps),
	}
	if cfg.Telemetry != nil {
		if h := cfg.Telemetry.PrometheusHandler(); h != nil {
			routers["/metrics"] = h
		}
	}

	for prefix, router := range routers {
		r.Mount(prefix, router)
	}
	return r
}

// Serve runs the server until ctx is cancelled, then drains connections.
// The caller sets up signal handling.
func Serve(ctx context.Context, address string, handler http.Handler) error {
	srv := &http.Server{
		BaseContext:       func(net.Listener) context.Context { return ctx },
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}

	logger.Infow("starting HTTP server", "address", address)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !goerrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Infow("HTTP server stopped")
	return nil
}

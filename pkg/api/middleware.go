// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/ratelimit"
)

// Body size caps. Media uploads get more headroom than JSON bodies.
const (
	maxJSONBody  = 1 << 20
	maxMediaBody = 10 << 20
)

// recoverer is the outermost middleware. Nothing escapes the server: a panic
// in any inner layer becomes a logged 500 with the standard error body.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				apierrors.WriteError(w, r, errors.NewInternal(
					"handler panicked", fmt.Errorf("%v", rec)))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// rateLimitMiddleware enforces the token bucket. Requests carrying a known
// bearer token draw from the per-user bucket; everything else draws from the
// per-IP bucket. The X-RateLimit headers are set on allow and deny alike.
func rateLimitMiddleware(limiter *ratelimit.Limiter, tokens *oauth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scope, id := ratelimit.ScopeIP, clientIP(r)
			if bearer := bearerToken(r); bearer != "" && tokens != nil {
				if token, err := tokens.Peek(r.Context(), bearer); err == nil {
					scope, id = ratelimit.ScopeUser, token.DID
				}
			}

			d, err := limiter.Allow(r.Context(), scope, id)
			if err != nil {
				// A broken cache must not take the API down.
				logger.Errorw("rate limit check failed", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", d.Reset.UTC().Format(time.RFC3339))

			if !d.Allowed {
				apierrors.WriteError(w, r, errors.NewRateLimited(d.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogger emits one structured line per request, correlated with the
// active span.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000,
			"remote", clientIP(r),
		}
		if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
			fields = append(fields, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
		}
		logger.Infow("request", fields...)
	})
}

// bodyLimiter caps the inbound body size. Media endpoints accept uploads;
// everything else is JSON or small forms.
func bodyLimiter(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := int64(maxJSONBody)
		if strings.HasPrefix(r.URL.Path, "/api/v1/media") || strings.HasPrefix(r.URL.Path, "/api/v2/media") {
			limit = maxMediaBody
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the first X-Forwarded-For hop when present, otherwise the
// peer address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

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

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "github.com/bluebridge-dev/bluebridge/pkg/api/v1"
	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/ratelimit"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

type noUpstream struct{}

func (noUpstream) Login(context.Context, string, string) (bluesky.Client, error) {
	return nil, errors.NewUnauthorized("no upstream in this test", nil)
}

func (noUpstream) ForSession(*bluesky.Session) bluesky.Client { return nil }

func testRouter(t *testing.T, limiter *ratelimit.Limiter) http.Handler {
	t.Helper()
	store := cache.NewMemory()
	ids := idmap.New(store)
	tokens := oauth.New(store, noUpstream{})
	return NewRouter(Config{
		Deps: v1.Deps{
			OAuth:           tokens,
			IDs:             ids,
			Translate:       translate.New(ids),
			Store:           store,
			Snowflakes:      snowflake.New(1),
			Domain:          "bridge.test",
			SoftwareVersion: "test",
		},
		Limiter: limiter,
		Tokens:  tokens,
	})
}

func TestRouterMounts(t *testing.T) {
	t.Parallel()
	router := testRouter(t, nil)

	tests := []struct {
		method string
		path   string
		status int
	}{
		{http.MethodGet, "/health", http.StatusNoContent},
		{http.MethodGet, "/api/v1/instance", http.StatusOK},
		{http.MethodGet, "/api/v2/instance", http.StatusOK},
		// Protected routes reject anonymous requests rather than 404ing.
		{http.MethodGet, "/api/v1/timelines/home", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/accounts/verify_credentials", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/notifications", http.StatusUnauthorized},
		{http.MethodGet, "/api/v2/search", http.StatusUnauthorized},
		{http.MethodGet, "/api/v1/preferences", http.StatusUnauthorized},
		{http.MethodPost, "/api/v2/media", http.StatusUnauthorized},
	}
	for _, tc := range tests {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, tc.status, w.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterUnauthorizedShape(t *testing.T) {
	t.Parallel()
	router := testRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/timelines/home", nil))
	require.Equal(t, http.StatusUnauthorized, w.Code)

	var body mastodon.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "unauthorized", body.Error)
}

func TestRouterRateLimits(t *testing.T) {
	t.Parallel()
	limiter := ratelimit.New(cache.NewMemory(), ratelimit.Config{
		Window:   time.Minute,
		Capacity: map[string]int{ratelimit.ScopeIP: 1, ratelimit.ScopeUser: 1},
	})
	router := testRouter(t, limiter)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestServeStopsOnContextCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", testRouter(t, nil))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancellation")
	}
}

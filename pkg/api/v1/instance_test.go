// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

func TestInstanceV1(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	// Instance metadata needs no auth.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	InstanceRouter(env.deps).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var inst mastodon.Instance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.Equal(t, "bridge.test", inst.URI)
	assert.Contains(t, inst.Version, "4.2.0 (compatible; BlueBridge")
	assert.EqualValues(t, 300, inst.Configuration.Statuses.MaxCharacters)
	assert.EqualValues(t, 4, inst.Configuration.Statuses.MaxMediaAttachments)
	assert.False(t, inst.Registrations)
}

func TestInstanceV2(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	InstanceV2Router(env.deps).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var inst mastodon.InstanceV2
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inst))
	assert.Equal(t, "bridge.test", inst.Domain)
	assert.False(t, inst.Registrations.Enabled)
}

func TestMiscEndpointsReturnEmpty(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := MiscRouter(env.deps)

	for _, path := range []string{
		"/filters", "/follow_requests", "/favourites", "/bookmarks",
		"/conversations", "/custom_emojis", "/lists",
	} {
		w := env.do(t, router, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, "[]", w.Body.String(), path)
	}
}

func TestPreferences(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, MiscRouter(env.deps), http.MethodGet, "/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var prefs map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &prefs))
	assert.Equal(t, "public", prefs["posting:default:visibility"])
}

func TestHealth(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	HealthRouter().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

func TestAppRegistration(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, AppsRouter(env.deps), http.MethodPost, "/", formBody(url.Values{
		"client_name":   {"Pinafore"},
		"redirect_uris": {"https://pinafore.social/settings/instances/add\nhttps://other.example/cb"},
		"scopes":        {"read write"},
		"website":       {"https://pinafore.social"},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var app mastodon.Application
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &app))
	assert.Equal(t, "Pinafore", app.Name)
	assert.NotEmpty(t, app.ClientID)
	assert.NotEmpty(t, app.ClientSecret)
	assert.NotEmpty(t, app.ID)
	assert.NotEmpty(t, app.VapidKey)
	// Only the first redirect URI is kept.
	assert.Equal(t, "https://pinafore.social/settings/instances/add", app.RedirectURI)
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := OAuthRouter(env.deps)

	app, err := env.deps.OAuth.RegisterApp(context.Background(),
		"test client", "https://client.example/cb", "", "read write")
	require.NoError(t, err)

	// The login form names the app.
	w := env.do(t, router, http.MethodGet,
		"/authorize?client_id="+app.ClientID+"&redirect_uri="+url.QueryEscape("https://client.example/cb")+"&scope=read+write", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test client")

	// Submitting credentials redirects back with a code.
	w = env.do(t, router, http.MethodPost, "/authorize", formBody(url.Values{
		"client_id":    {app.ClientID},
		"redirect_uri": {"https://client.example/cb"},
		"scope":        {"read write"},
		"username":     {testHandle},
		"password":     {"app-password"},
	}))
	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	code := loc.Query().Get("code")
	require.NotEmpty(t, code)

	// The code exchanges for a bearer token.
	w = env.do(t, router, http.MethodPost, "/token", formBody(url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
		"redirect_uri":  {"https://client.example/cb"},
		"code":          {code},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	var token mastodon.Token
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &token))
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.Equal(t, "read write", token.Scope)

	// Codes are single use.
	w = env.do(t, router, http.MethodPost, "/token", formBody(url.Values{
		"grant_type":    {"authorization_code"},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
		"redirect_uri":  {"https://client.example/cb"},
		"code":          {code},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthorizeOutOfBandShowsCode(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := OAuthRouter(env.deps)

	app, err := env.deps.OAuth.RegisterApp(context.Background(),
		"oob client", oobRedirectURI, "", "read")
	require.NoError(t, err)

	w := env.do(t, router, http.MethodPost, "/authorize", formBody(url.Values{
		"client_id":    {app.ClientID},
		"redirect_uri": {oobRedirectURI},
		"scope":        {"read"},
		"username":     {testHandle},
		"password":     {"app-password"},
	}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "authorization code")
}

func TestPasswordGrantBadCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	router := OAuthRouter(env.deps)

	app, err := env.deps.OAuth.RegisterApp(context.Background(),
		"pw client", oobRedirectURI, "", "read")
	require.NoError(t, err)

	w := env.do(t, router, http.MethodPost, "/token", formBody(url.Values{
		"grant_type":    {"password"},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
		"username":      {testHandle},
		"password":      {"wrong"},
	}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	var body mastodon.Error
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "invalid_grant", body.Error)
}

func TestTokenUnsupportedGrantType(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, OAuthRouter(env.deps), http.MethodPost, "/token", formBody(url.Values{
		"grant_type": {"client_credentials"},
	}))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRevokeToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	w := env.do(t, OAuthRouter(env.deps), http.MethodPost, "/revoke",
		formBody(url.Values{"token": {env.token}}))
	require.Equal(t, http.StatusOK, w.Code)

	// The revoked token no longer authenticates.
	rec := env.do(t, AccountRouter(env.deps), http.MethodGet, "/verify_credentials", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

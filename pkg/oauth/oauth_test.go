// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package oauth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
)

// fakeClient satisfies bluesky.Client through embedding; only the session
// methods are real.
type fakeClient struct {
	bluesky.Client
	session    *bluesky.Session
	refreshErr error
	refreshed  int
}

func (f *fakeClient) Session() *bluesky.Session { return f.session }

func (f *fakeClient) RefreshSession(_ context.Context) (*bluesky.Session, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	fresh := *f.session
	fresh.AccessJWT = "access-refreshed"
	fresh.RefreshJWT = "refresh-refreshed"
	fresh.CreatedAt = time.Now().UTC()
	f.session = &fresh
	return &fresh, nil
}

type fakeUpstream struct {
	loginErr   error
	refreshErr error
	logins     []string
	last       *fakeClient
}

func (f *fakeUpstream) Login(_ context.Context, identifier, password string) (bluesky.Client, error) {
	f.logins = append(f.logins, identifier+"/"+password)
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	f.last = &fakeClient{session: &bluesky.Session{
		AccessJWT:  "access-1",
		RefreshJWT: "refresh-1",
		DID:        "did:plc:alice",
		Handle:     "alice.bsky.social",
		CreatedAt:  time.Now().UTC(),
	}}
	return f.last, nil
}

func (f *fakeUpstream) ForSession(session *bluesky.Session) bluesky.Client {
	f.last = &fakeClient{session: session, refreshErr: f.refreshErr}
	return f.last
}

func newService(t *testing.T) (*Service, *fakeUpstream) {
	t.Helper()
	up := &fakeUpstream{}
	return New(cache.NewMemory(), up), up
}

func registerApp(t *testing.T, s *Service) *Application {
	t.Helper()
	app, err := s.RegisterApp(context.Background(), "Test App", "urn:ietf:wg:oauth:2.0:oob", "", "read write")
	require.NoError(t, err)
	return app
}

func TestRegisterApp(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)

	app := registerApp(t, s)
	assert.NotEmpty(t, app.ClientID)
	assert.NotEmpty(t, app.ClientSecret)
	assert.Equal(t, []string{"read", "write"}, app.Scopes)

	loaded, err := s.App(context.Background(), app.ClientID)
	require.NoError(t, err)
	assert.Equal(t, app.ClientSecret, loaded.ClientSecret)
}

func TestRegisterAppValidation(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)

	_, err := s.RegisterApp(context.Background(), "", "urn:ietf:wg:oauth:2.0:oob", "", "")
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = s.RegisterApp(context.Background(), "App", "", "", "")
	assert.Equal(t, errors.KindValidation, errors.KindOf(err))

	_, err = s.RegisterApp(context.Background(), "App", "urn:ietf:wg:oauth:2.0:oob", "", "read admin")
	assert.Equal(t, errors.KindInvalidScope, errors.KindOf(err))
}

func TestAuthorizationCodeFlow(t *testing.T) {
	t.Parallel()
	s, up := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	code, err := s.Authorize(ctx, app.ClientID, app.RedirectURI, "read write", "alice.bsky.social", "app-password")
	require.NoError(t, err)
	require.NotEmpty(t, code)
	assert.Empty(t, up.logins, "authorize must not hit the upstream")

	token, err := s.ExchangeCode(ctx, app.ClientID, app.ClientSecret, app.RedirectURI, code)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", token.DID)
	assert.Equal(t, []string{"read", "write"}, token.Scopes)
	assert.Equal(t, []string{"alice.bsky.social/app-password"}, up.logins)

	// Single use: the second exchange fails even with matching parameters.
	_, err = s.ExchangeCode(ctx, app.ClientID, app.ClientSecret, app.RedirectURI, code)
	assert.Equal(t, errors.KindInvalidGrant, errors.KindOf(err))
}

func TestExchangeCodeRejectsMismatches(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	app := registerApp(t, s)
	other := registerApp(t, s)
	ctx := context.Background()

	code, err := s.Authorize(ctx, app.ClientID, app.RedirectURI, "", "alice.bsky.social", "pw")
	require.NoError(t, err)
	_, err = s.ExchangeCode(ctx, other.ClientID, other.ClientSecret, app.RedirectURI, code)
	assert.Equal(t, errors.KindInvalidGrant, errors.KindOf(err))

	code, err = s.Authorize(ctx, app.ClientID, app.RedirectURI, "", "alice.bsky.social", "pw")
	require.NoError(t, err)
	_, err = s.ExchangeCode(ctx, app.ClientID, "wrong-secret", app.RedirectURI, code)
	assert.Equal(t, errors.KindInvalidClient, errors.KindOf(err))

	code, err = s.Authorize(ctx, app.ClientID, app.RedirectURI, "", "alice.bsky.social", "pw")
	require.NoError(t, err)
	_, err = s.ExchangeCode(ctx, app.ClientID, app.ClientSecret, "https://elsewhere.example", code)
	assert.Equal(t, errors.KindInvalidGrant, errors.KindOf(err))
}

func TestAuthorizeRejectsWrongRedirect(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	app := registerApp(t, s)

	_, err := s.Authorize(context.Background(), app.ClientID, "https://elsewhere.example", "", "alice", "pw")
	assert.Equal(t, errors.KindInvalidGrant, errors.KindOf(err))
}

func TestPasswordGrant(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	app := registerApp(t, s)

	token, err := s.PasswordGrant(context.Background(), app.ClientID, app.ClientSecret, "", "alice.bsky.social", "pw")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, token.Scopes, "empty scope defaults to read")
	assert.Equal(t, "alice.bsky.social", token.Handle)
}

func TestPasswordGrantBadCredentials(t *testing.T) {
	t.Parallel()
	s, up := newService(t)
	app := registerApp(t, s)
	up.loginErr = errors.NewUnauthorized("bad credentials", nil)

	_, err := s.PasswordGrant(context.Background(), app.ClientID, app.ClientSecret, "", "alice", "wrong")
	assert.Equal(t, errors.KindInvalidGrant, errors.KindOf(err))
}

func TestValidate(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	issued, err := s.PasswordGrant(ctx, app.ClientID, app.ClientSecret, "read write follow", "alice", "pw")
	require.NoError(t, err)

	token, client, err := s.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "did:plc:alice", token.DID)
	assert.Equal(t, "did:plc:alice", client.Session().DID)
	assert.True(t, token.HasScope("write"))
	assert.False(t, token.HasScope("push"))
}

func TestValidateUnknownToken(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)

	_, _, err := s.Validate(context.Background(), "no-such-token")
	assert.True(t, errors.IsUnauthorized(err))
}

func TestValidateRefreshesAgedSession(t *testing.T) {
	t.Parallel()
	s, up := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	issued, err := s.PasswordGrant(ctx, app.ClientID, app.ClientSecret, "", "alice", "pw")
	require.NoError(t, err)

	// Age the embedded session past the refresh threshold.
	issued.Session.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, cache.SetJSON(ctx, s.store, keyToken+issued.AccessToken, issued, 0))

	token, _, err := s.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, 1, up.last.refreshed)
	assert.Equal(t, "access-refreshed", token.Session.AccessJWT)

	// The rewritten token survives; the next validation sees the fresh
	// session and does not refresh again.
	token, _, err = s.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed", token.Session.AccessJWT)
	assert.Equal(t, 0, up.last.refreshed)
}

func TestValidateDeletesTokenOnRevokedSession(t *testing.T) {
	t.Parallel()
	s, up := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	issued, err := s.PasswordGrant(ctx, app.ClientID, app.ClientSecret, "", "alice", "pw")
	require.NoError(t, err)

	issued.Session.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, cache.SetJSON(ctx, s.store, keyToken+issued.AccessToken, issued, 0))
	up.refreshErr = errors.NewUnauthorized("revoked", nil)

	_, _, err = s.Validate(ctx, issued.AccessToken)
	assert.True(t, errors.IsUnauthorized(err))

	// Token is gone even after the upstream recovers.
	up.refreshErr = nil
	_, _, err = s.Validate(ctx, issued.AccessToken)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestValidateKeepsTokenOnTransientRefreshFailure(t *testing.T) {
	t.Parallel()
	s, up := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	issued, err := s.PasswordGrant(ctx, app.ClientID, app.ClientSecret, "", "alice", "pw")
	require.NoError(t, err)

	issued.Session.CreatedAt = time.Now().Add(-2 * time.Hour)
	require.NoError(t, cache.SetJSON(ctx, s.store, keyToken+issued.AccessToken, issued, 0))
	up.refreshErr = errors.NewUpstream("pds down", nil)

	token, _, err := s.Validate(ctx, issued.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "access-1", token.Session.AccessJWT, "stale session is kept")
}

func TestRevokeIsIdempotent(t *testing.T) {
	t.Parallel()
	s, _ := newService(t)
	app := registerApp(t, s)
	ctx := context.Background()

	issued, err := s.PasswordGrant(ctx, app.ClientID, app.ClientSecret, "", "alice", "pw")
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, issued.AccessToken))
	_, _, err = s.Validate(ctx, issued.AccessToken)
	assert.True(t, errors.IsUnauthorized(err))

	require.NoError(t, s.Revoke(ctx, issued.AccessToken))
	require.NoError(t, s.Revoke(ctx, "never-issued"))
}

func TestParseScopes(t *testing.T) {
	t.Parallel()

	scopes, err := ParseScopes("")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, scopes)

	scopes, err = ParseScopes("read write follow push")
	require.NoError(t, err)
	assert.Len(t, scopes, 4)

	_, err = ParseScopes("read profile")
	assert.Equal(t, errors.KindInvalidScope, errors.KindOf(err))
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package oauth implements the OAuth 2.0 surface of the gateway: application
// registry, authorization codes, and opaque bearer tokens.
//
// The service is stateless; every piece of OAuth state lives in the cache so
// any gateway instance can serve any request. An issued bearer token embeds
// the full upstream session it was exchanged for, and validation transparently
// refreshes that session when its access token ages out.
package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
)

// Cache key prefixes; part of the deployed data model.
const (
	keyApp   = "oauth:app:"
	keyCode  = "oauth:code:"
	keyToken = "oauth:token:"
)

const codeTTL = 10 * time.Minute

// refreshAge is how old an embedded session may grow before validation
// refreshes it. Upstream access tokens live about two hours; refreshing
// after 90 minutes keeps a healthy margin.
const refreshAge = 90 * time.Minute

// recognizedScopes are the scope tokens the gateway accepts.
var recognizedScopes = map[string]bool{
	"read":   true,
	"write":  true,
	"follow": true,
	"push":   true,
}

// Application is a registered OAuth client. Applications are immutable and
// never expire.
type Application struct {
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Name         string    `json:"name"`
	RedirectURI  string    `json:"redirect_uri"`
	Website      string    `json:"website,omitempty"`
	Scopes       []string  `json:"scopes"`
	CreatedAt    time.Time `json:"created_at"`
}

// authorizationCode carries the approved grant, including the credentials
// collected at the authorize step, until the client exchanges it. Never
// leaves the cache.
type authorizationCode struct {
	ClientID    string    `json:"client_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	Identifier  string    `json:"identifier"`
	Password    string    `json:"password"`
	CreatedAt   time.Time `json:"created_at"`
}

// Token is an issued bearer token with its embedded upstream session.
type Token struct {
	AccessToken string          `json:"access_token"`
	ClientID    string          `json:"client_id"`
	DID         string          `json:"did"`
	Handle      string          `json:"handle"`
	Scopes      []string        `json:"scopes"`
	Session     *bluesky.Session `json:"session"`
	CreatedAt   time.Time       `json:"created_at"`

	// ExpiresIn bounds the token lifetime in seconds; zero means the token
	// lives until revoked.
	ExpiresIn int64 `json:"expires_in"`
}

// HasScope reports whether the token grants the named scope.
func (t *Token) HasScope(scope string) bool {
	for _, s := range t.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (t *Token) expired(now time.Time) bool {
	if t.ExpiresIn <= 0 {
		return false
	}
	return now.After(t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second))
}

// Upstream is the slice of the upstream adapter the OAuth service needs.
// *bluesky.Factory satisfies it.
type Upstream interface {
	Login(ctx context.Context, identifier, password string) (bluesky.Client, error)
	ForSession(session *bluesky.Session) bluesky.Client
}

// Service implements the OAuth flows over the cache and the upstream adapter.
type Service struct {
	store    cache.Store
	upstream Upstream
	now      func() time.Time
}

// New creates the OAuth service.
func New(store cache.Store, upstream Upstream) *Service {
	return &Service{store: store, upstream: upstream, now: time.Now}
}

// RegisterApp creates and stores a new application. scope is the raw
// space-separated scope string from the request.
func (s *Service) RegisterApp(ctx context.Context, name, redirectURI, website, scope string) (*Application, error) {
	if name == "" {
		return nil, errors.NewValidation("client_name", "Client name is required")
	}
	if redirectURI == "" {
		return nil, errors.NewValidation("redirect_uris", "Redirect URI is required")
	}
	scopes, err := ParseScopes(scope)
	if err != nil {
		return nil, err
	}

	app := &Application{
		ClientID:     randomToken(16),
		ClientSecret: randomToken(32),
		Name:         name,
		RedirectURI:  redirectURI,
		Website:      website,
		Scopes:       scopes,
		CreatedAt:    s.now().UTC(),
	}
	if err := cache.SetJSON(ctx, s.store, keyApp+app.ClientID, app, 0); err != nil {
		return nil, errors.NewInternal("storing application", err)
	}
	return app, nil
}

// App loads a registered application.
func (s *Service) App(ctx context.Context, clientID string) (*Application, error) {
	var app Application
	err := cache.GetJSON(ctx, s.store, keyApp+clientID, &app)
	if err == cache.ErrNotFound {
		return nil, errors.NewInvalidClient("Unknown client_id")
	}
	if err != nil {
		return nil, errors.NewInternal("loading application", err)
	}
	return &app, nil
}

// Authorize approves a grant and returns a single-use authorization code.
// The upstream credentials ride inside the code record; they are verified
// against the PDS at exchange time.
func (s *Service) Authorize(ctx context.Context, clientID, redirectURI, scope, identifier, password string) (string, error) {
	app, err := s.App(ctx, clientID)
	if err != nil {
		return "", err
	}
	if redirectURI != app.RedirectURI {
		return "", errors.NewInvalidGrant("redirect_uri does not match the registered application")
	}
	scopes, err := ParseScopes(scope)
	if err != nil {
		return "", err
	}
	if identifier == "" || password == "" {
		return "", errors.NewValidation("username", "Bluesky handle and app password are required")
	}

	code := randomToken(32)
	record := authorizationCode{
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      scopes,
		Identifier:  identifier,
		Password:    password,
		CreatedAt:   s.now().UTC(),
	}
	if err := cache.SetJSON(ctx, s.store, keyCode+code, &record, codeTTL); err != nil {
		return "", errors.NewInternal("storing authorization code", err)
	}
	return code, nil
}

// ExchangeCode redeems an authorization code for a bearer token. The code is
// deleted before the upstream login so it can never be redeemed twice, even
// if the login then fails.
func (s *Service) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURI, code string) (*Token, error) {
	var record authorizationCode
	err := cache.GetJSON(ctx, s.store, keyCode+code, &record)
	if err == cache.ErrNotFound {
		return nil, errors.NewInvalidGrant("Authorization code is invalid or expired")
	}
	if err != nil {
		return nil, errors.NewInternal("loading authorization code", err)
	}
	if err := s.store.Delete(ctx, keyCode+code); err != nil {
		return nil, errors.NewInternal("consuming authorization code", err)
	}

	if record.ClientID != clientID {
		return nil, errors.NewInvalidGrant("Authorization code was issued to a different client")
	}
	if record.RedirectURI != redirectURI {
		return nil, errors.NewInvalidGrant("redirect_uri does not match the authorization request")
	}
	if err := s.checkSecret(ctx, clientID, clientSecret); err != nil {
		return nil, err
	}

	return s.issueToken(ctx, clientID, record.Scopes, record.Identifier, record.Password)
}

// PasswordGrant exchanges upstream credentials for a bearer token directly.
func (s *Service) PasswordGrant(ctx context.Context, clientID, clientSecret, scope, identifier, password string) (*Token, error) {
	if err := s.checkSecret(ctx, clientID, clientSecret); err != nil {
		return nil, err
	}
	scopes, err := ParseScopes(scope)
	if err != nil {
		return nil, err
	}
	return s.issueToken(ctx, clientID, scopes, identifier, password)
}

func (s *Service) checkSecret(ctx context.Context, clientID, clientSecret string) error {
	app, err := s.App(ctx, clientID)
	if err != nil {
		return err
	}
	if app.ClientSecret != clientSecret {
		return errors.NewInvalidClient("client_secret does not match")
	}
	return nil
}

func (s *Service) issueToken(ctx context.Context, clientID string, scopes []string, identifier, password string) (*Token, error) {
	client, err := s.upstream.Login(ctx, identifier, password)
	if err != nil {
		if errors.IsUnauthorized(err) {
			return nil, errors.NewInvalidGrant("Bluesky rejected the handle or app password")
		}
		return nil, err
	}

	token := &Token{
		AccessToken: randomToken(32),
		ClientID:    clientID,
		DID:         client.Session().DID,
		Handle:      client.Session().Handle,
		Scopes:      scopes,
		Session:     client.Session(),
		CreatedAt:   s.now().UTC(),
	}
	if err := cache.SetJSON(ctx, s.store, keyToken+token.AccessToken, token, 0); err != nil {
		return nil, errors.NewInternal("storing token", err)
	}
	return token, nil
}

// Validate resolves a bearer token to its current state and a client bound to
// its session, refreshing the session transparently when it has aged out.
//
// A refresh rejected upstream deletes the token; the login is gone for good.
// A refresh that fails for availability reasons keeps the token and proceeds
// on the old session, since the access token may still be accepted.
func (s *Service) Validate(ctx context.Context, accessToken string) (*Token, bluesky.Client, error) {
	var token Token
	err := cache.GetJSON(ctx, s.store, keyToken+accessToken, &token)
	if err == cache.ErrNotFound {
		return nil, nil, errors.NewUnauthorized("The access token is invalid", nil)
	}
	if err != nil {
		return nil, nil, errors.NewInternal("loading token", err)
	}
	if token.expired(s.now()) {
		_ = s.store.Delete(ctx, keyToken+accessToken)
		return nil, nil, errors.NewUnauthorized("The access token has expired", nil)
	}

	client := s.upstream.ForSession(token.Session)

	if s.now().Sub(token.Session.CreatedAt) > refreshAge {
		fresh, err := client.RefreshSession(ctx)
		switch {
		case err == nil:
			token.Session = fresh
			if err := cache.SetJSON(ctx, s.store, keyToken+accessToken, &token, 0); err != nil {
				return nil, nil, errors.NewInternal("rewriting token", err)
			}
		case errors.IsUnauthorized(err):
			_ = s.store.Delete(ctx, keyToken+accessToken)
			return nil, nil, errors.NewUnauthorized("The upstream session was revoked", err)
		default:
			logger.Warnw("session refresh failed, continuing on stale session",
				"did", token.DID, "error", err)
		}
	}

	return &token, client, nil
}

// Peek loads a token without touching its session. Used by the rate limiter
// to pick the bucket scope before the request is fully authenticated.
func (s *Service) Peek(ctx context.Context, accessToken string) (*Token, error) {
	var token Token
	err := cache.GetJSON(ctx, s.store, keyToken+accessToken, &token)
	if err == cache.ErrNotFound {
		return nil, errors.NewUnauthorized("The access token is invalid", nil)
	}
	if err != nil {
		return nil, errors.NewInternal("loading token", err)
	}
	return &token, nil
}

// Revoke deletes a bearer token. Revoking an absent token succeeds.
func (s *Service) Revoke(ctx context.Context, accessToken string) error {
	if err := s.store.Delete(ctx, keyToken+accessToken); err != nil {
		return errors.NewInternal("revoking token", err)
	}
	return nil
}

// ParseScopes validates a space-separated scope string. Empty input defaults
// to read-only.
func ParseScopes(scope string) ([]string, error) {
	if strings.TrimSpace(scope) == "" {
		return []string{"read"}, nil
	}
	fields := strings.Fields(scope)
	scopes := make([]string, 0, len(fields))
	for _, f := range fields {
		if !recognizedScopes[f] {
			return nil, errors.NewInvalidScope(fmt.Sprintf("Unrecognized scope %q", f))
		}
		scopes = append(scopes, f)
	}
	return scopes, nil
}

// randomToken returns n bytes of cryptographic randomness, URL-safe encoded.
func randomToken(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms.
		panic(fmt.Sprintf("reading random bytes: %v", err))
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

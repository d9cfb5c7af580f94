// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package v1 contains the Mastodon-compatible REST API routes.
package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

// Deps carries the services the route handlers depend on.
type Deps struct {
	OAuth      *oauth.Service
	IDs        *idmap.Mapper
	Translate  *translate.Translator
	Store      cache.Store
	Snowflakes *snowflake.Generator

	// Domain is the hostname this gateway presents in instance metadata.
	Domain string

	// SoftwareVersion is reported in instance metadata.
	SoftwareVersion string
}

// principal is the authenticated request context: the bearer token and an
// upstream client bound to its session.
type principal struct {
	token  *oauth.Token
	client bluesky.Client
}

type contextKey struct{}

// RequireAuth validates the bearer token and attaches the principal to the
// request context. Handlers behind it use currentUser.
func RequireAuth(tokens *oauth.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bearer := bearerToken(r)
			if bearer == "" {
				writeError(w, r, errors.NewUnauthorized("This method requires an authenticated user", nil))
				return
			}
			token, client, err := tokens.Validate(r.Context(), bearer)
			if err != nil {
				writeError(w, r, err)
				return
			}
			ctx := context.WithValue(r.Context(), contextKey{}, &principal{token: token, client: client})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// currentUser returns the principal attached by RequireAuth.
func currentUser(r *http.Request) *principal {
	p, _ := r.Context().Value(contextKey{}).(*principal)
	return p
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// writeError delegates to the shared decorator so middlewares and the few
// handlers that fail before returning share one wire shape.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apierrors.WriteError(w, r, err)
}

// writeJSON serializes a success response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorw("encoding response", "error", err)
	}
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
)

// AppsRoutes defines the routes for OAuth application registration.
type AppsRoutes struct {
	oauth *oauth.Service
}

// AppsRouter creates a new AppsRoutes instance.
func AppsRouter(deps Deps) http.Handler {
	routes := AppsRoutes{oauth: deps.OAuth}

	r := chi.NewRouter()
	r.Post("/", apierrors.ErrorHandler(routes.register))
	return r
}

func (s *AppsRoutes) register(w http.ResponseWriter, r *http.Request) error {
	values, err := requestValues(r)
	if err != nil {
		return err
	}

	// Mastodon allows several redirect URIs separated by newlines; the
	// gateway keeps the first.
	redirectURI := values.Get("redirect_uris")
	if i := strings.IndexByte(redirectURI, '\n'); i >= 0 {
		redirectURI = redirectURI[:i]
	}

	app, err := s.oauth.RegisterApp(r.Context(),
		values.Get("client_name"), redirectURI, values.Get("website"), values.Get("scopes"))
	if err != nil {
		return err
	}

	writeJSON(w, http.StatusOK, mastodon.Application{
		ID:           strconv.FormatInt(idmap.HashSnowflake(app.ClientID), 10),
		Name:         app.Name,
		Website:      app.Website,
		RedirectURI:  app.RedirectURI,
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		// Push is not bridged; an opaque key keeps clients that insist on
		// subscribing from crashing.
		VapidKey: uuid.NewString(),
	})
	return nil
}

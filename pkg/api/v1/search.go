// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

// searchResults is the /api/v2/search response envelope.
type searchResults struct {
	Accounts []*mastodon.Account `json:"accounts"`
	Statuses []*mastodon.Status  `json:"statuses"`
	Hashtags []mastodon.Tag      `json:"hashtags"`
}

// SearchRoutes defines the unified search endpoint.
type SearchRoutes struct {
	translate *translate.Translator
}

// SearchRouter creates a new SearchRoutes instance for /api/v2/search.
func SearchRouter(deps Deps) http.Handler {
	routes := SearchRoutes{translate: deps.Translate}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Get("/", apierrors.ErrorHandler(routes.search))
	return r
}

func (s *SearchRoutes) search(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query().Get("q")
	if q == "" {
		return errors.NewValidation("q", "q parameter is required")
	}
	kind := r.URL.Query().Get("type")
	page := pageFromRequest(r)
	user := currentUser(r)
	ctx := r.Context()

	results := searchResults{
		Accounts: []*mastodon.Account{},
		Statuses: []*mastodon.Status{},
		Hashtags: []mastodon.Tag{},
	}

	if kind == "" || kind == "accounts" {
		actors, _, err := user.client.SearchActors(ctx, q, page)
		if err != nil {
			return err
		}
		for _, actor := range actors {
			account, err := s.translate.AccountFromView(ctx, actor)
			if err != nil {
				return err
			}
			results.Accounts = append(results.Accounts, account)
		}
	}

	if kind == "" || kind == "statuses" {
		posts, _, err := user.client.SearchPosts(ctx, q, page)
		if err != nil {
			return err
		}
		for _, pv := range posts {
			status, err := s.translate.Status(ctx, pv)
			if err != nil {
				return err
			}
			results.Statuses = append(results.Statuses, status)
		}
	}

	if kind == "" || kind == "hashtags" {
		if tag := strings.TrimPrefix(q, "#"); tag != q && tag != "" {
			results.Hashtags = append(results.Hashtags, mastodon.Tag{
				Name: tag,
				URL:  "https://bsky.app/hashtag/" + tag,
			})
		}
	}

	writeJSON(w, http.StatusOK, results)
	return nil
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

// MiscRoutes serves the endpoints Mastodon clients probe that Bluesky has no
// model for. They answer with empty collections so clients degrade cleanly
// instead of erroring.
type MiscRoutes struct{}

// MiscRouter creates a new MiscRoutes instance.
func MiscRouter(deps Deps) http.Handler {
	routes := MiscRoutes{}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Get("/preferences", apierrors.ErrorHandler(routes.preferences))
	r.Get("/filters", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/follow_requests", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/favourites", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/bookmarks", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/conversations", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/custom_emojis", apierrors.ErrorHandler(routes.emptyList))
	r.Get("/lists", apierrors.ErrorHandler(routes.lists))
	r.Get("/lists/{id}", apierrors.ErrorHandler(routes.list))
	r.Get("/lists/{id}/accounts", apierrors.ErrorHandler(routes.emptyList))
	return r
}

func (s *MiscRoutes) preferences(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, map[string]any{
		"posting:default:visibility": "public",
		"posting:default:sensitive":  false,
		"posting:default:language":   nil,
		"reading:expand:media":       "default",
		"reading:expand:spoilers":    false,
	})
	return nil
}

func (s *MiscRoutes) lists(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, []mastodon.List{})
	return nil
}

func (s *MiscRoutes) list(w http.ResponseWriter, r *http.Request) error {
	writeJSON(w, http.StatusOK, mastodon.List{
		ID:            chi.URLParam(r, "id"),
		Title:         "",
		RepliesPolicy: "list",
	})
	return nil
}

func (s *MiscRoutes) emptyList(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, []struct{}{})
	return nil
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"
	"strconv"

	bsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

// getPostsBatchSize is the upstream limit on URIs per getPosts call.
const getPostsBatchSize = 25

// NotificationRoutes defines the notification endpoints.
type NotificationRoutes struct {
	ids       *idmap.Mapper
	translate *translate.Translator
}

// NotificationRouter creates a new NotificationRoutes instance.
func NotificationRouter(deps Deps) http.Handler {
	routes := NotificationRoutes{ids: deps.IDs, translate: deps.Translate}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Get("/", apierrors.ErrorHandler(routes.index))
	r.Post("/clear", apierrors.ErrorHandler(routes.clear))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	return r
}

func (s *NotificationRoutes) index(w http.ResponseWriter, r *http.Request) error {
	user := currentUser(r)
	ctx := r.Context()

	items, cursor, err := user.client.ListNotifications(ctx, pageFromRequest(r))
	if err != nil {
		return err
	}

	// Batch-resolve the subject posts so each notification carries its
	// status without one getPosts round trip apiece.
	uris := make([]string, 0, len(items))
	seen := map[string]bool{}
	for _, n := range items {
		if uri := translate.SubjectURI(n); uri != "" && !seen[uri] {
			seen[uri] = true
			uris = append(uris, uri)
		}
	}
	subjects := map[string]*bsky.FeedDefs_PostView{}
	for start := 0; start < len(uris); start += getPostsBatchSize {
		end := min(start+getPostsBatchSize, len(uris))
		posts, err := user.client.GetPosts(ctx, uris[start:end])
		if err != nil {
			return err
		}
		for _, pv := range posts {
			subjects[pv.Uri] = pv
		}
	}

	out := make([]*mastodon.Notification, 0, len(items))
	for _, n := range items {
		notification, err := s.translate.Notification(ctx, n, subjects[translate.SubjectURI(n)])
		if err != nil {
			return err
		}
		if notification == nil {
			continue
		}
		out = append(out, notification)
	}
	writeLinkHeader(w, r, cursor)
	writeJSON(w, http.StatusOK, out)
	return nil
}

// get serves a single notification by scanning the first page for the ID.
// Upstream has no point lookup; clients call this rarely, on push opens.
func (s *NotificationRoutes) get(w http.ResponseWriter, r *http.Request) error {
	sf, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return errors.NewValidation("id", "Notification ID must be a decimal snowflake")
	}
	uri, err := s.ids.ATURIForSnowflake(r.Context(), sf)
	if err == cache.ErrNotFound {
		return errors.NewNotFound("Record not found", nil)
	}
	if err != nil {
		return errors.NewInternal("resolving notification id", err)
	}

	user := currentUser(r)
	items, _, err := user.client.ListNotifications(r.Context(), pageFromRequest(r))
	if err != nil {
		return err
	}
	for _, n := range items {
		if n.Uri != uri {
			continue
		}
		var subject *bsky.FeedDefs_PostView
		if subjectURI := translate.SubjectURI(n); subjectURI != "" {
			posts, err := user.client.GetPosts(r.Context(), []string{subjectURI})
			if err != nil {
				return err
			}
			if len(posts) > 0 {
				subject = posts[0]
			}
		}
		notification, err := s.translate.Notification(r.Context(), n, subject)
		if err != nil {
			return err
		}
		if notification != nil {
			writeJSON(w, http.StatusOK, notification)
			return nil
		}
	}
	return errors.NewNotFound("Record not found", nil)
}

func (s *NotificationRoutes) clear(w http.ResponseWriter, r *http.Request) error {
	if err := currentUser(r).client.MarkNotificationsSeen(r.Context()); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, struct{}{})
	return nil
}

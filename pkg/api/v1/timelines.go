// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"net/http"

	bsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

// discoverFeedURI is the network-wide Discover feed generator, standing in
// for the public timeline Bluesky has no direct equivalent of.
const discoverFeedURI = "at://did:plc:z72i7hdynmk6r22z27h6tvur/app.bsky.feed.generator/whats-hot"

// TimelineRoutes defines the timeline endpoints.
type TimelineRoutes struct {
	translate *translate.Translator
}

// TimelineRouter creates a new TimelineRoutes instance.
func TimelineRouter(deps Deps) http.Handler {
	routes := TimelineRoutes{translate: deps.Translate}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Get("/home", apierrors.ErrorHandler(routes.home))
	r.Get("/public", apierrors.ErrorHandler(routes.public))
	r.Get("/tag/{hashtag}", apierrors.ErrorHandler(routes.tag))
	r.Get("/list/{id}", apierrors.ErrorHandler(routes.list))
	return r
}

func (s *TimelineRoutes) home(w http.ResponseWriter, r *http.Request) error {
	feed, cursor, err := currentUser(r).client.GetTimeline(r.Context(), pageFromRequest(r))
	if err != nil {
		return err
	}
	return s.writeFeed(w, r, feed, cursor)
}

func (s *TimelineRoutes) public(w http.ResponseWriter, r *http.Request) error {
	feed, cursor, err := currentUser(r).client.GetFeed(r.Context(), discoverFeedURI, pageFromRequest(r))
	if err != nil {
		// Feed generators come and go; an empty public timeline beats a 502.
		if errors.IsNotFound(err) || errors.IsUpstream(err) {
			writeJSON(w, http.StatusOK, []*mastodon.Status{})
			return nil
		}
		return err
	}
	return s.writeFeed(w, r, feed, cursor)
}

func (s *TimelineRoutes) tag(w http.ResponseWriter, r *http.Request) error {
	hashtag := chi.URLParam(r, "hashtag")
	posts, cursor, err := currentUser(r).client.SearchPosts(r.Context(), "#"+hashtag, pageFromRequest(r))
	if err != nil {
		return err
	}

	statuses := make([]*mastodon.Status, 0, len(posts))
	for _, pv := range posts {
		status, err := s.translate.Status(r.Context(), pv)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}
	writeLinkHeader(w, r, cursor)
	writeJSON(w, http.StatusOK, statuses)
	return nil
}

// list timelines have no Bluesky equivalent exposed here.
func (s *TimelineRoutes) list(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, []*mastodon.Status{})
	return nil
}

func (s *TimelineRoutes) writeFeed(w http.ResponseWriter, r *http.Request, feed []*bsky.FeedDefs_FeedViewPost, cursor string) error {
	statuses := make([]*mastodon.Status, 0, len(feed))
	for _, item := range feed {
		status, err := s.translate.StatusFromFeedItem(r.Context(), item)
		if err != nil {
			return err
		}
		statuses = append(statuses, status)
	}
	writeLinkHeader(w, r, cursor)
	writeJSON(w, http.StatusOK, statuses)
	return nil
}

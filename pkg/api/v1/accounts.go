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

// AccountRoutes defines the account endpoints.
type AccountRoutes struct {
	ids       *idmap.Mapper
	translate *translate.Translator
	records   recordURIs
}

// AccountRouter creates a new AccountRoutes instance.
func AccountRouter(deps Deps) http.Handler {
	routes := AccountRoutes{
		ids:       deps.IDs,
		translate: deps.Translate,
		records:   recordURIs{store: deps.Store},
	}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Get("/verify_credentials", apierrors.ErrorHandler(routes.verifyCredentials))
	r.Get("/lookup", apierrors.ErrorHandler(routes.lookup))
	r.Get("/search", apierrors.ErrorHandler(routes.search))
	r.Get("/relationships", apierrors.ErrorHandler(routes.relationships))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	r.Get("/{id}/statuses", apierrors.ErrorHandler(routes.statuses))
	r.Get("/{id}/followers", apierrors.ErrorHandler(routes.followers))
	r.Get("/{id}/following", apierrors.ErrorHandler(routes.following))
	r.Post("/{id}/follow", apierrors.ErrorHandler(routes.follow))
	r.Post("/{id}/unfollow", apierrors.ErrorHandler(routes.unfollow))
	return r
}

// didForID resolves a path snowflake to a DID. IDs the gateway has never
// handed out (or that aged out of a cold cache) are not found.
func (s *AccountRoutes) didForID(r *http.Request) (string, error) {
	sf, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return "", errors.NewValidation("id", "Account ID must be a decimal snowflake")
	}
	did, err := s.ids.DIDForSnowflake(r.Context(), sf)
	if err == cache.ErrNotFound {
		return "", errors.NewNotFound("Record not found", nil)
	}
	if err != nil {
		return "", errors.NewInternal("resolving account id", err)
	}
	return did, nil
}

func (s *AccountRoutes) verifyCredentials(w http.ResponseWriter, r *http.Request) error {
	user := currentUser(r)
	profile, err := user.client.GetProfile(r.Context(), user.token.DID)
	if err != nil {
		return err
	}
	account, err := s.translate.Account(r.Context(), profile)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, account)
	return nil
}

func (s *AccountRoutes) lookup(w http.ResponseWriter, r *http.Request) error {
	acct := r.URL.Query().Get("acct")
	if acct == "" {
		return errors.NewValidation("acct", "acct parameter is required")
	}

	user := currentUser(r)
	profile, err := user.client.GetProfile(r.Context(), acct)
	if err != nil {
		return err
	}
	account, err := s.translate.Account(r.Context(), profile)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, account)
	return nil
}

func (s *AccountRoutes) get(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}

	user := currentUser(r)
	profile, err := user.client.GetProfile(r.Context(), did)
	if err != nil {
		return err
	}
	account, err := s.translate.Account(r.Context(), profile)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, account)
	return nil
}

func (s *AccountRoutes) search(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query().Get("q")
	if q == "" {
		return errors.NewValidation("q", "q parameter is required")
	}

	user := currentUser(r)
	actors, _, err := user.client.SearchActors(r.Context(), q, pageFromRequest(r))
	if err != nil {
		return err
	}

	accounts := make([]*mastodon.Account, 0, len(actors))
	for _, actor := range actors {
		account, err := s.translate.AccountFromView(r.Context(), actor)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}
	writeJSON(w, http.StatusOK, accounts)
	return nil
}

func (s *AccountRoutes) relationships(w http.ResponseWriter, r *http.Request) error {
	ids := r.URL.Query()["id[]"]
	if len(ids) == 0 {
		ids = r.URL.Query()["id"]
	}

	dids := make([]string, 0, len(ids))
	for _, raw := range ids {
		sf, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		did, err := s.ids.DIDForSnowflake(r.Context(), sf)
		if err == cache.ErrNotFound {
			continue
		}
		if err != nil {
			return errors.NewInternal("resolving account id", err)
		}
		dids = append(dids, did)
	}

	rels := make([]*mastodon.Relationship, 0, len(dids))
	if len(dids) > 0 {
		user := currentUser(r)
		profiles, err := user.client.GetProfiles(r.Context(), dids)
		if err != nil {
			return err
		}
		for _, p := range profiles {
			rel, err := s.translate.Relationship(r.Context(), p.Did, p.Viewer)
			if err != nil {
				return err
			}
			rels = append(rels, rel)
		}
	}
	writeJSON(w, http.StatusOK, rels)
	return nil
}

func (s *AccountRoutes) statuses(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}

	filter := "posts_with_replies"
	q := r.URL.Query()
	if q.Get("exclude_replies") == "true" {
		filter = "posts_no_replies"
	}
	if q.Get("only_media") == "true" {
		filter = "posts_with_media"
	}

	user := currentUser(r)
	feed, cursor, err := user.client.GetAuthorFeed(r.Context(), did, filter, pageFromRequest(r))
	if err != nil {
		return err
	}

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

func (s *AccountRoutes) followers(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}
	views, cursor, err := currentUser(r).client.GetFollowers(r.Context(), did, pageFromRequest(r))
	if err != nil {
		return err
	}
	return s.writeAccountList(w, r, views, cursor)
}

func (s *AccountRoutes) following(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}
	views, cursor, err := currentUser(r).client.GetFollows(r.Context(), did, pageFromRequest(r))
	if err != nil {
		return err
	}
	return s.writeAccountList(w, r, views, cursor)
}

func (s *AccountRoutes) writeAccountList(w http.ResponseWriter, r *http.Request, views []*bsky.ActorDefs_ProfileView, cursor string) error {
	accounts := make([]*mastodon.Account, 0, len(views))
	for _, v := range views {
		account, err := s.translate.AccountFromView(r.Context(), v)
		if err != nil {
			return err
		}
		accounts = append(accounts, account)
	}
	writeLinkHeader(w, r, cursor)
	writeJSON(w, http.StatusOK, accounts)
	return nil
}

func (s *AccountRoutes) follow(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}

	user := currentUser(r)
	if did == user.token.DID {
		return errors.NewValidation("id", "Cannot follow yourself")
	}

	recordURI, err := user.client.Follow(r.Context(), did)
	if err != nil {
		return err
	}
	if err := s.records.saveFollow(r.Context(), user.token.DID, did, recordURI); err != nil {
		return errors.NewInternal("storing follow record", err)
	}

	rel, err := s.relationshipAfterWrite(r, did, true)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rel)
	return nil
}

func (s *AccountRoutes) unfollow(w http.ResponseWriter, r *http.Request) error {
	did, err := s.didForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	ctx := r.Context()

	recordURI, err := s.records.follow(ctx, user.token.DID, did)
	if err != nil {
		return errors.NewInternal("resolving follow record", err)
	}
	if recordURI == "" {
		// The follow predates this gateway's memory; the viewer state on
		// the profile carries the record URI.
		profile, err := user.client.GetProfile(ctx, did)
		if err != nil {
			return err
		}
		if profile.Viewer != nil && profile.Viewer.Following != nil {
			recordURI = *profile.Viewer.Following
		}
	}

	if recordURI != "" {
		if err := user.client.DeleteRecord(ctx, recordURI); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	if err := s.records.deleteFollow(ctx, user.token.DID, did); err != nil {
		return errors.NewInternal("clearing follow record", err)
	}

	rel, err := s.relationshipAfterWrite(r, did, false)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rel)
	return nil
}

// relationshipAfterWrite builds the response relationship reflecting the
// write that just happened, without waiting for the upstream view to catch
// up.
func (s *AccountRoutes) relationshipAfterWrite(r *http.Request, did string, following bool) (*mastodon.Relationship, error) {
	rel, err := s.translate.Relationship(r.Context(), did, nil)
	if err != nil {
		return nil, err
	}
	rel.Following = following
	return rel, nil
}

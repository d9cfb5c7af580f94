// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	bsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/logger"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/richtext"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

const threadDepth = 10

// StatusRoutes defines the status endpoints.
type StatusRoutes struct {
	ids       *idmap.Mapper
	translate *translate.Translator
	store     cache.Store
	records   recordURIs
}

// StatusRouter creates a new StatusRoutes instance.
func StatusRouter(deps Deps) http.Handler {
	routes := StatusRoutes{
		ids:       deps.IDs,
		translate: deps.Translate,
		store:     deps.Store,
		records:   recordURIs{store: deps.Store},
	}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Post("/", apierrors.ErrorHandler(routes.create))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	r.Delete("/{id}", apierrors.ErrorHandler(routes.delete))
	r.Get("/{id}/context", apierrors.ErrorHandler(routes.context))
	r.Post("/{id}/favourite", apierrors.ErrorHandler(routes.favourite))
	r.Post("/{id}/unfavourite", apierrors.ErrorHandler(routes.unfavourite))
	r.Post("/{id}/reblog", apierrors.ErrorHandler(routes.reblog))
	r.Post("/{id}/unreblog", apierrors.ErrorHandler(routes.unreblog))
	r.Get("/{id}/favourited_by", apierrors.ErrorHandler(routes.favouritedBy))
	r.Get("/{id}/reblogged_by", apierrors.ErrorHandler(routes.rebloggedBy))
	return r
}

// uriForID resolves a path snowflake to the AT URI of the post.
func (s *StatusRoutes) uriForID(r *http.Request) (string, error) {
	sf, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return "", errors.NewValidation("id", "Status ID must be a decimal snowflake")
	}
	uri, err := s.ids.ATURIForSnowflake(r.Context(), sf)
	if err == cache.ErrNotFound {
		return "", errors.NewNotFound("Record not found", nil)
	}
	if err != nil {
		return "", errors.NewInternal("resolving status id", err)
	}
	return uri, nil
}

// fetchPost loads one post view by AT URI.
func (s *StatusRoutes) fetchPost(r *http.Request, uri string) (*bsky.FeedDefs_PostView, error) {
	posts, err := currentUser(r).client.GetPosts(r.Context(), []string{uri})
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, errors.NewNotFound("Record not found", nil)
	}
	return posts[0], nil
}

func (s *StatusRoutes) create(w http.ResponseWriter, r *http.Request) error {
	values, err := requestValues(r)
	if err != nil {
		return err
	}
	text := values.Get("status")
	mediaIDs := values["media_ids[]"]
	if len(mediaIDs) == 0 {
		mediaIDs = values["media_ids"]
	}
	if text == "" && len(mediaIDs) == 0 {
		return errors.NewValidation("status", "Status text or media is required")
	}
	if utf8.RuneCountInString(text) > maxStatusCharacters {
		return errors.NewValidation("status", "Status exceeds the 300 character limit")
	}

	user := currentUser(r)
	ctx := r.Context()

	facets, err := richtext.Detect(ctx, text, func(fctx context.Context, handle string) (string, error) {
		did, err := user.client.ResolveHandle(fctx, handle)
		if errors.IsNotFound(err) {
			return "", nil
		}
		return did, err
	})
	if err != nil {
		return err
	}

	post := &bsky.FeedPost{
		LexiconTypeID: "app.bsky.feed.post",
		Text:          text,
		Facets:        facets,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}
	if lang := values.Get("language"); lang != "" {
		post.Langs = []string{lang}
	}

	if replyID := values.Get("in_reply_to_id"); replyID != "" {
		reply, err := s.replyRef(r, replyID)
		if err != nil {
			return err
		}
		post.Reply = reply
	}

	if len(mediaIDs) > 0 {
		embed, err := s.imagesEmbed(ctx, mediaIDs)
		if err != nil {
			return err
		}
		post.Embed = embed
	}

	uri, _, err := user.client.CreatePost(ctx, post)
	if err != nil {
		return err
	}

	// Prime the mapping now so the ID in the response resolves immediately.
	if _, err := s.ids.SnowflakeForATURI(ctx, uri); err != nil {
		return errors.NewInternal("mapping created status", err)
	}

	pv, err := s.fetchPost(r, uri)
	if err != nil {
		// The PDS has not indexed the post yet; the client will refetch.
		logger.Debugw("created post not yet indexed", "uri", uri, "error", err)
		sf, _ := s.ids.SnowflakeForATURI(ctx, uri)
		writeJSON(w, http.StatusOK, &mastodon.Status{
			ID:         strconv.FormatInt(sf, 10),
			URI:        uri,
			Visibility: "public",
		})
		return nil
	}

	status, err := s.translate.Status(ctx, pv)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, status)
	return nil
}

// replyRef builds the reply reference for a new post: the parent is the
// post being answered, the root is the parent's own thread root.
func (s *StatusRoutes) replyRef(r *http.Request, replyID string) (*bsky.FeedPost_ReplyRef, error) {
	sf, err := strconv.ParseInt(replyID, 10, 64)
	if err != nil {
		return nil, errors.NewValidation("in_reply_to_id", "in_reply_to_id must be a decimal snowflake")
	}
	uri, err := s.ids.ATURIForSnowflake(r.Context(), sf)
	if err == cache.ErrNotFound {
		return nil, errors.NewNotFound("Parent status not found", nil)
	}
	if err != nil {
		return nil, errors.NewInternal("resolving in_reply_to_id", err)
	}

	parent, err := s.fetchPost(r, uri)
	if err != nil {
		return nil, err
	}

	parentRef := &comatproto.RepoStrongRef{Uri: parent.Uri, Cid: parent.Cid}
	rootRef := parentRef
	if parent.Record != nil {
		if rec, ok := parent.Record.Val.(*bsky.FeedPost); ok && rec.Reply != nil && rec.Reply.Root != nil {
			rootRef = rec.Reply.Root
		}
	}
	return &bsky.FeedPost_ReplyRef{Parent: parentRef, Root: rootRef}, nil
}

// imagesEmbed resolves staged media into an images embed.
func (s *StatusRoutes) imagesEmbed(ctx context.Context, mediaIDs []string) (*bsky.FeedPost_Embed, error) {
	if len(mediaIDs) > maxMediaPerStatus {
		return nil, errors.NewValidation("media_ids", "At most 4 media attachments per status")
	}
	images := make([]*bsky.EmbedImages_Image, 0, len(mediaIDs))
	for _, id := range mediaIDs {
		staged, err := loadStagedMedia(ctx, s.store, id)
		if err != nil {
			return nil, err
		}
		images = append(images, &bsky.EmbedImages_Image{
			Alt:   staged.Description,
			Image: staged.Blob,
		})
	}
	return &bsky.FeedPost_Embed{
		EmbedImages: &bsky.EmbedImages{
			LexiconTypeID: "app.bsky.embed.images",
			Images:        images,
		},
	}, nil
}

func (s *StatusRoutes) get(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	pv, err := s.fetchPost(r, uri)
	if err != nil {
		return err
	}
	status, err := s.translate.Status(r.Context(), pv)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) delete(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	if idmap.DIDFromATURI(uri) != user.token.DID {
		return errors.NewForbidden("Cannot delete another user's status", nil)
	}

	// Fetch before deleting; Mastodon returns the removed status.
	var status *mastodon.Status
	if pv, err := s.fetchPost(r, uri); err == nil {
		status, _ = s.translate.Status(r.Context(), pv)
	}

	if err := user.client.DeleteRecord(r.Context(), uri); err != nil {
		return err
	}
	if status == nil {
		status = &mastodon.Status{ID: chi.URLParam(r, "id"), URI: uri}
	}
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) context(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}

	thread, err := currentUser(r).client.GetPostThread(r.Context(), uri, threadDepth)
	if err != nil {
		return err
	}

	out := &mastodon.Context{Ancestors: []*mastodon.Status{}, Descendants: []*mastodon.Status{}}

	// Ancestors run root-first.
	var ancestors []*mastodon.Status
	for parent := thread.Parent; parent != nil && parent.FeedDefs_ThreadViewPost != nil; parent = parent.FeedDefs_ThreadViewPost.Parent {
		status, err := s.translate.Status(r.Context(), parent.FeedDefs_ThreadViewPost.Post)
		if err != nil {
			return err
		}
		ancestors = append([]*mastodon.Status{status}, ancestors...)
	}
	out.Ancestors = append(out.Ancestors, ancestors...)

	if err := s.collectDescendants(r, thread, out); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, out)
	return nil
}

func (s *StatusRoutes) collectDescendants(r *http.Request, node *bsky.FeedDefs_ThreadViewPost, out *mastodon.Context) error {
	for _, reply := range node.Replies {
		child := reply.FeedDefs_ThreadViewPost
		if child == nil {
			continue
		}
		status, err := s.translate.Status(r.Context(), child.Post)
		if err != nil {
			return err
		}
		out.Descendants = append(out.Descendants, status)
		if err := s.collectDescendants(r, child, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *StatusRoutes) favourite(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	ctx := r.Context()

	pv, err := s.fetchPost(r, uri)
	if err != nil {
		return err
	}

	recordURI, err := user.client.LikePost(ctx, pv.Uri, pv.Cid)
	if err != nil {
		return err
	}
	if err := s.records.saveLike(ctx, user.token.DID, uri, recordURI); err != nil {
		return errors.NewInternal("storing like record", err)
	}

	status, err := s.translate.Status(ctx, pv)
	if err != nil {
		return err
	}
	status.Favourited = true
	status.FavouritesCount++
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) unfavourite(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	ctx := r.Context()

	pv, err := s.fetchPost(r, uri)
	if err != nil {
		return err
	}

	recordURI, err := s.records.like(ctx, user.token.DID, uri)
	if err != nil {
		return errors.NewInternal("resolving like record", err)
	}
	if recordURI == "" && pv.Viewer != nil && pv.Viewer.Like != nil {
		recordURI = *pv.Viewer.Like
	}
	if recordURI != "" {
		if err := user.client.DeleteRecord(ctx, recordURI); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	if err := s.records.deleteLike(ctx, user.token.DID, uri); err != nil {
		return errors.NewInternal("clearing like record", err)
	}

	status, err := s.translate.Status(ctx, pv)
	if err != nil {
		return err
	}
	status.Favourited = false
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) reblog(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	ctx := r.Context()

	pv, err := s.fetchPost(r, uri)
	if err != nil {
		return err
	}

	recordURI, err := user.client.Repost(ctx, pv.Uri, pv.Cid)
	if err != nil {
		return err
	}
	if err := s.records.saveRepost(ctx, user.token.DID, uri, recordURI); err != nil {
		return errors.NewInternal("storing repost record", err)
	}

	status, err := s.translate.Status(ctx, pv)
	if err != nil {
		return err
	}
	status.Reblogged = true
	status.ReblogsCount++
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) unreblog(w http.ResponseWriter, r *http.Request) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	user := currentUser(r)
	ctx := r.Context()

	pv, err := s.fetchPost(r, uri)
	if err != nil {
		return err
	}

	recordURI, err := s.records.repost(ctx, user.token.DID, uri)
	if err != nil {
		return errors.NewInternal("resolving repost record", err)
	}
	if recordURI == "" && pv.Viewer != nil && pv.Viewer.Repost != nil {
		recordURI = *pv.Viewer.Repost
	}
	if recordURI != "" {
		if err := user.client.DeleteRecord(ctx, recordURI); err != nil && !errors.IsNotFound(err) {
			return err
		}
	}
	if err := s.records.deleteRepost(ctx, user.token.DID, uri); err != nil {
		return errors.NewInternal("clearing repost record", err)
	}

	status, err := s.translate.Status(ctx, pv)
	if err != nil {
		return err
	}
	status.Reblogged = false
	writeJSON(w, http.StatusOK, status)
	return nil
}

func (s *StatusRoutes) favouritedBy(w http.ResponseWriter, r *http.Request) error {
	return s.interactors(w, r, func(uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
		return currentUser(r).client.GetLikedBy(r.Context(), uri, page)
	})
}

func (s *StatusRoutes) rebloggedBy(w http.ResponseWriter, r *http.Request) error {
	return s.interactors(w, r, func(uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
		return currentUser(r).client.GetRepostedBy(r.Context(), uri, page)
	})
}

func (s *StatusRoutes) interactors(
	w http.ResponseWriter,
	r *http.Request,
	fetch func(string, bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error),
) error {
	uri, err := s.uriForID(r)
	if err != nil {
		return err
	}
	views, cursor, err := fetch(uri, pageFromRequest(r))
	if err != nil {
		return err
	}

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

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/go-chi/chi/v5"

	apierrors "github.com/bluebridge-dev/bluebridge/pkg/api/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
)

const (
	keyMedia = "media:"

	// Matches the media body cap applied by the API middleware.
	maxMediaBody = 10 << 20

	// Staged uploads that never make it into a post expire on their own.
	mediaTTL = 24 * time.Hour
)

// stagedMedia is an uploaded blob parked between the upload call and the
// status that references it.
type stagedMedia struct {
	ID          string           `json:"id"`
	DID         string           `json:"did"`
	Blob        *lexutil.LexBlob `json:"blob"`
	MimeType    string           `json:"mime_type"`
	Description string           `json:"description"`
}

func loadStagedMedia(ctx context.Context, store cache.Store, id string) (*stagedMedia, error) {
	var staged stagedMedia
	if err := cache.GetJSON(ctx, store, keyMedia+id, &staged); err != nil {
		if err == cache.ErrNotFound {
			return nil, errors.NewNotFound("Media attachment not found", nil)
		}
		return nil, errors.NewInternal("loading media attachment", err)
	}
	return &staged, nil
}

func saveStagedMedia(ctx context.Context, store cache.Store, staged *stagedMedia) error {
	if err := cache.SetJSON(ctx, store, keyMedia+staged.ID, staged, mediaTTL); err != nil {
		return errors.NewInternal("storing media attachment", err)
	}
	return nil
}

// MediaRoutes defines the media attachment endpoints. Mounted at both
// /api/v1/media and /api/v2/media; the two versions behave identically here.
type MediaRoutes struct {
	store      cache.Store
	snowflakes *snowflake.Generator
}

// MediaRouter creates a new MediaRoutes instance.
func MediaRouter(deps Deps) http.Handler {
	routes := MediaRoutes{store: deps.Store, snowflakes: deps.Snowflakes}

	r := chi.NewRouter()
	r.Use(RequireAuth(deps.OAuth))
	r.Post("/", apierrors.ErrorHandler(routes.upload))
	r.Get("/{id}", apierrors.ErrorHandler(routes.get))
	r.Put("/{id}", apierrors.ErrorHandler(routes.update))
	return r
}

func (s *MediaRoutes) upload(w http.ResponseWriter, r *http.Request) error {
	if err := r.ParseMultipartForm(maxMediaBody); err != nil {
		return errors.NewValidation("file", "Request must be multipart/form-data with a file part")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return errors.NewValidation("file", "file part is required")
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	user := currentUser(r)
	blob, err := user.client.UploadBlob(r.Context(), file, mimeType)
	if err != nil {
		return err
	}

	staged := &stagedMedia{
		ID:          strconv.FormatInt(s.snowflakes.Next(), 10),
		DID:         user.token.DID,
		Blob:        blob,
		MimeType:    blob.MimeType,
		Description: r.FormValue("description"),
	}
	if err := saveStagedMedia(r.Context(), s.store, staged); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.attachment(staged))
	return nil
}

func (s *MediaRoutes) get(w http.ResponseWriter, r *http.Request) error {
	staged, err := s.loadOwn(r)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.attachment(staged))
	return nil
}

func (s *MediaRoutes) update(w http.ResponseWriter, r *http.Request) error {
	staged, err := s.loadOwn(r)
	if err != nil {
		return err
	}
	values, err := requestValues(r)
	if err != nil {
		return err
	}
	if values.Has("description") {
		staged.Description = values.Get("description")
		if err := saveStagedMedia(r.Context(), s.store, staged); err != nil {
			return err
		}
	}
	writeJSON(w, http.StatusOK, s.attachment(staged))
	return nil
}

func (s *MediaRoutes) loadOwn(r *http.Request) (*stagedMedia, error) {
	staged, err := loadStagedMedia(r.Context(), s.store, chi.URLParam(r, "id"))
	if err != nil {
		return nil, err
	}
	if staged.DID != currentUser(r).token.DID {
		return nil, errors.NewNotFound("Media attachment not found", nil)
	}
	return staged, nil
}

// attachment renders the staged blob the way posted images render: the CDN
// serves blobs by owner DID and content hash before any post references them.
func (s *MediaRoutes) attachment(staged *stagedMedia) *mastodon.MediaAttachment {
	url := fmt.Sprintf("https://cdn.bsky.app/img/feed_fullsize/plain/%s/%s@jpeg",
		staged.DID, staged.Blob.Ref.String())
	preview := fmt.Sprintf("https://cdn.bsky.app/img/feed_thumbnail/plain/%s/%s@jpeg",
		staged.DID, staged.Blob.Ref.String())
	att := &mastodon.MediaAttachment{
		ID:         staged.ID,
		Type:       "image",
		URL:        url,
		PreviewURL: preview,
	}
	if staged.Description != "" {
		att.Description = &staged.Description
	}
	return att
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	bsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

// testBlob builds a LexBlob through its JSON form; the CID inside the ref is
// a valid CIDv1.
func testBlob(t *testing.T) *lexutil.LexBlob {
	t.Helper()
	var blob lexutil.LexBlob
	raw := `{"$type":"blob","ref":{"$link":"bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku"},"mimeType":"image/png","size":3}`
	require.NoError(t, json.Unmarshal([]byte(raw), &blob))
	return &blob
}

func uploadMedia(t *testing.T, env *testEnv, description string) mastodon.MediaAttachment {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "photo.png")
	require.NoError(t, err)
	_, err = part.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	if description != "" {
		require.NoError(t, mw.WriteField("description", description))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Authorization", "Bearer "+env.token)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	MediaRouter(env.deps).ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var att mastodon.MediaAttachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &att))
	return att
}

func TestMediaUpload(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	var gotMime string
	var gotBytes []byte
	env.client.uploadBlob = func(_ context.Context, r io.Reader, mimeType string) (*lexutil.LexBlob, error) {
		gotMime = mimeType
		gotBytes, _ = io.ReadAll(r)
		return testBlob(t), nil
	}

	att := uploadMedia(t, env, "a red square")
	assert.NotEmpty(t, att.ID)
	assert.Equal(t, "image", att.Type)
	assert.Contains(t, att.URL, testDID)
	require.NotNil(t, att.Description)
	assert.Equal(t, "a red square", *att.Description)
	assert.Equal(t, []byte{1, 2, 3}, gotBytes)
	assert.NotEmpty(t, gotMime)
}

func TestMediaGetAndUpdate(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.client.uploadBlob = func(_ context.Context, _ io.Reader, _ string) (*lexutil.LexBlob, error) {
		return testBlob(t), nil
	}

	att := uploadMedia(t, env, "")

	w := env.do(t, MediaRouter(env.deps), http.MethodGet, "/"+att.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, MediaRouter(env.deps), http.MethodPut, "/"+att.ID,
		formBody(url.Values{"description": {"now described"}}))
	require.Equal(t, http.StatusOK, w.Code)

	var updated mastodon.MediaAttachment
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	require.NotNil(t, updated.Description)
	assert.Equal(t, "now described", *updated.Description)
}

func TestMediaUnknownID(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, MediaRouter(env.deps), http.MethodGet, "/12345", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateStatusWithMedia(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.client.uploadBlob = func(_ context.Context, _ io.Reader, _ string) (*lexutil.LexBlob, error) {
		return testBlob(t), nil
	}
	att := uploadMedia(t, env, "alt text")

	var created *bsky.FeedPost
	env.client.createPost = func(_ context.Context, post *bsky.FeedPost) (string, string, error) {
		created = post
		return testURI, testCID, nil
	}
	env.client.getPosts = func(_ context.Context, _ []string) ([]*bsky.FeedDefs_PostView, error) {
		return []*bsky.FeedDefs_PostView{feedPostView(testURI, "with image")}, nil
	}

	w := env.do(t, StatusRouter(env.deps), http.MethodPost, "/", formBody(url.Values{
		"status":      {"with image"},
		"media_ids[]": {att.ID},
	}))
	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, created)
	require.NotNil(t, created.Embed)
	require.NotNil(t, created.Embed.EmbedImages)
	require.Len(t, created.Embed.EmbedImages.Images, 1)
	assert.Equal(t, "alt text", created.Embed.EmbedImages.Images[0].Alt)
}

func TestCreateStatusWithUnknownMedia(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	w := env.do(t, StatusRouter(env.deps), http.MethodPost, "/", formBody(url.Values{
		"status":      {"with image"},
		"media_ids[]": {"404404404"},
	}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

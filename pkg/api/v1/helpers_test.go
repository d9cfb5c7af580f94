// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	bsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/stretchr/testify/require"

	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/errors"
	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/oauth"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
	"github.com/bluebridge-dev/bluebridge/pkg/translate"
)

const (
	testDID    = "did:plc:abcdefghij1234567890ab"
	testHandle = "alice.bsky.social"
	testURI    = "at://" + testDID + "/app.bsky.feed.post/3jzfcijpj2z2a"
	testCID    = "bafyreib2rxk3rh6kzwq"
)

// fakeClient implements bluesky.Client with function fields. Methods without
// an override return not-found so handlers exercise their error paths.
type fakeClient struct {
	session *bluesky.Session

	resolveHandle     func(ctx context.Context, handle string) (string, error)
	getProfile        func(ctx context.Context, actor string) (*bsky.ActorDefs_ProfileViewDetailed, error)
	getProfiles       func(ctx context.Context, actors []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error)
	searchActors      func(ctx context.Context, query string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	getFollowers      func(ctx context.Context, actor string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	getFollows        func(ctx context.Context, actor string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	getTimeline       func(ctx context.Context, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	getAuthorFeed     func(ctx context.Context, actor, filter string, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	getFeed           func(ctx context.Context, feedURI string, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	getPostThread     func(ctx context.Context, uri string, depth int64) (*bsky.FeedDefs_ThreadViewPost, error)
	getPosts          func(ctx context.Context, uris []string) ([]*bsky.FeedDefs_PostView, error)
	getLikedBy        func(ctx context.Context, uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	getRepostedBy     func(ctx context.Context, uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	searchPosts       func(ctx context.Context, query string, page bluesky.Page) ([]*bsky.FeedDefs_PostView, string, error)
	createPost        func(ctx context.Context, post *bsky.FeedPost) (string, string, error)
	deleteRecord      func(ctx context.Context, uri string) error
	likePost          func(ctx context.Context, uri, cid string) (string, error)
	repost            func(ctx context.Context, uri, cid string) (string, error)
	follow            func(ctx context.Context, did string) (string, error)
	uploadBlob        func(ctx context.Context, r io.Reader, mimeType string) (*lexutil.LexBlob, error)
	listNotifications func(ctx context.Context, page bluesky.Page) ([]*bsky.NotificationListNotifications_Notification, string, error)
	markSeen          func(ctx context.Context) error
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		session: &bluesky.Session{
			AccessJWT:  "access-1",
			RefreshJWT: "refresh-1",
			DID:        testDID,
			Handle:     testHandle,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

var errFakeNotFound = errors.NewNotFound("Record not found", nil)

func (f *fakeClient) Session() *bluesky.Session { return f.session }

func (f *fakeClient) RefreshSession(context.Context) (*bluesky.Session, error) {
	return f.session, nil
}

func (f *fakeClient) ResolveHandle(ctx context.Context, handle string) (string, error) {
	if f.resolveHandle == nil {
		return "", errFakeNotFound
	}
	return f.resolveHandle(ctx, handle)
}

func (f *fakeClient) GetProfile(ctx context.Context, actor string) (*bsky.ActorDefs_ProfileViewDetailed, error) {
	if f.getProfile == nil {
		return nil, errFakeNotFound
	}
	return f.getProfile(ctx, actor)
}

func (f *fakeClient) GetProfiles(ctx context.Context, actors []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error) {
	if f.getProfiles == nil {
		return nil, errFakeNotFound
	}
	return f.getProfiles(ctx, actors)
}

func (f *fakeClient) SearchActors(ctx context.Context, query string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if f.searchActors == nil {
		return nil, "", nil
	}
	return f.searchActors(ctx, query, page)
}

func (f *fakeClient) GetFollowers(ctx context.Context, actor string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if f.getFollowers == nil {
		return nil, "", nil
	}
	return f.getFollowers(ctx, actor, page)
}

func (f *fakeClient) GetFollows(ctx context.Context, actor string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if f.getFollows == nil {
		return nil, "", nil
	}
	return f.getFollows(ctx, actor, page)
}

func (f *fakeClient) GetTimeline(ctx context.Context, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if f.getTimeline == nil {
		return nil, "", nil
	}
	return f.getTimeline(ctx, page)
}

func (f *fakeClient) GetAuthorFeed(ctx context.Context, actor, filter string, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if f.getAuthorFeed == nil {
		return nil, "", nil
	}
	return f.getAuthorFeed(ctx, actor, filter, page)
}

func (f *fakeClient) GetFeed(ctx context.Context, feedURI string, page bluesky.Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if f.getFeed == nil {
		return nil, "", nil
	}
	return f.getFeed(ctx, feedURI, page)
}

func (f *fakeClient) GetPostThread(ctx context.Context, uri string, depth int64) (*bsky.FeedDefs_ThreadViewPost, error) {
	if f.getPostThread == nil {
		return nil, errFakeNotFound
	}
	return f.getPostThread(ctx, uri, depth)
}

func (f *fakeClient) GetPosts(ctx context.Context, uris []string) ([]*bsky.FeedDefs_PostView, error) {
	if f.getPosts == nil {
		return nil, nil
	}
	return f.getPosts(ctx, uris)
}

func (f *fakeClient) GetLikedBy(ctx context.Context, uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if f.getLikedBy == nil {
		return nil, "", nil
	}
	return f.getLikedBy(ctx, uri, page)
}

func (f *fakeClient) GetRepostedBy(ctx context.Context, uri string, page bluesky.Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if f.getRepostedBy == nil {
		return nil, "", nil
	}
	return f.getRepostedBy(ctx, uri, page)
}

func (f *fakeClient) SearchPosts(ctx context.Context, query string, page bluesky.Page) ([]*bsky.FeedDefs_PostView, string, error) {
	if f.searchPosts == nil {
		return nil, "", nil
	}
	return f.searchPosts(ctx, query, page)
}

func (f *fakeClient) CreatePost(ctx context.Context, post *bsky.FeedPost) (string, string, error) {
	if f.createPost == nil {
		return testURI, testCID, nil
	}
	return f.createPost(ctx, post)
}

func (f *fakeClient) DeleteRecord(ctx context.Context, uri string) error {
	if f.deleteRecord == nil {
		return nil
	}
	return f.deleteRecord(ctx, uri)
}

func (f *fakeClient) LikePost(ctx context.Context, uri, cid string) (string, error) {
	if f.likePost == nil {
		return "at://" + testDID + "/app.bsky.feed.like/3jzfcijpj2z2a", nil
	}
	return f.likePost(ctx, uri, cid)
}

func (f *fakeClient) Repost(ctx context.Context, uri, cid string) (string, error) {
	if f.repost == nil {
		return "at://" + testDID + "/app.bsky.feed.repost/3jzfcijpj2z2a", nil
	}
	return f.repost(ctx, uri, cid)
}

func (f *fakeClient) Follow(ctx context.Context, did string) (string, error) {
	if f.follow == nil {
		return "at://" + testDID + "/app.bsky.graph.follow/3jzfcijpj2z2a", nil
	}
	return f.follow(ctx, did)
}

func (f *fakeClient) UploadBlob(ctx context.Context, r io.Reader, mimeType string) (*lexutil.LexBlob, error) {
	if f.uploadBlob == nil {
		return nil, errFakeNotFound
	}
	return f.uploadBlob(ctx, r, mimeType)
}

func (f *fakeClient) ListNotifications(ctx context.Context, page bluesky.Page) ([]*bsky.NotificationListNotifications_Notification, string, error) {
	if f.listNotifications == nil {
		return nil, "", nil
	}
	return f.listNotifications(ctx, page)
}

func (f *fakeClient) MarkNotificationsSeen(ctx context.Context) error {
	if f.markSeen == nil {
		return nil
	}
	return f.markSeen(ctx)
}

func (f *fakeClient) UnreadNotificationCount(context.Context) (int64, error) { return 0, nil }

// fakeUpstream hands out the same fake client for every login and session.
type fakeUpstream struct {
	client *fakeClient
}

func (f *fakeUpstream) Login(_ context.Context, _, password string) (bluesky.Client, error) {
	if password == "wrong" {
		return nil, errors.NewUnauthorized("Invalid identifier or password", nil)
	}
	return f.client, nil
}

func (f *fakeUpstream) ForSession(*bluesky.Session) bluesky.Client { return f.client }

// testEnv wires the full dependency graph over an in-memory cache and a
// fake upstream, and issues one valid bearer token.
type testEnv struct {
	deps   Deps
	client *fakeClient
	store  cache.Store
	ids    *idmap.Mapper
	token  string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := cache.NewMemory()
	client := newFakeClient()
	tokens := oauth.New(store, &fakeUpstream{client: client})
	ids := idmap.New(store)

	app, err := tokens.RegisterApp(context.Background(), "test app", "urn:ietf:wg:oauth:2.0:oob", "", "read write follow push")
	require.NoError(t, err)
	token, err := tokens.PasswordGrant(context.Background(),
		app.ClientID, app.ClientSecret, "read write follow push", testHandle, "app-password")
	require.NoError(t, err)

	return &testEnv{
		deps: Deps{
			OAuth:           tokens,
			IDs:             ids,
			Translate:       translate.New(ids),
			Store:           store,
			Snowflakes:      snowflake.New(1),
			Domain:          "bridge.test",
			SoftwareVersion: "test",
		},
		client: client,
		store:  store,
		ids:    ids,
		token:  token.AccessToken,
	}
}

// do executes a request against a router and returns the recorder.
func (e *testEnv) do(t *testing.T, router http.Handler, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer "+e.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func formBody(values url.Values) io.Reader {
	return strings.NewReader(values.Encode())
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

// profileView builds a minimal upstream profile for list endpoints.
func profileView(did, handle string) *bsky.ActorDefs_ProfileView {
	return &bsky.ActorDefs_ProfileView{Did: did, Handle: handle}
}

func detailedView(did, handle string) *bsky.ActorDefs_ProfileViewDetailed {
	return &bsky.ActorDefs_ProfileViewDetailed{Did: did, Handle: handle}
}

// feedPostView builds an upstream post view carrying a real record.
func feedPostView(uri, text string) *bsky.FeedDefs_PostView {
	return &bsky.FeedDefs_PostView{
		Uri:       uri,
		Cid:       testCID,
		Author:    &bsky.ActorDefs_ProfileViewBasic{Did: testDID, Handle: testHandle},
		IndexedAt: "2026-01-02T03:04:05Z",
		Record: &lexutil.LexiconTypeDecoder{Val: &bsky.FeedPost{
			LexiconTypeID: "app.bsky.feed.post",
			Text:          text,
			CreatedAt:     "2026-01-02T03:04:05Z",
		}},
	}
}

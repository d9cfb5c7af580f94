// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package bluesky is the upstream adapter: a session-scoped client for the
// AT Protocol Personal Data Server backing the gateway.
//
// Every authenticated request binds its own Client to the session embedded
// in the caller's bearer token; there is no shared login. Two clients for
// the same user are safe because upstream session tokens are interchangeable.
// All upstream failures are normalized into the gateway error taxonomy
// before they leave this package.
package bluesky

import (
	"context"
	"io"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	bsky "github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"golang.org/x/time/rate"
)

// DefaultHost is the public Bluesky PDS.
const DefaultHost = "https://bsky.social"

// Session holds the upstream credentials bound to one bearer token. It
// round-trips unchanged through the cache as JSON.
type Session struct {
	AccessJWT  string    `json:"access_token"`
	RefreshJWT string    `json:"refresh_token"`
	DID        string    `json:"did"`
	Handle     string    `json:"handle"`
	Email      string    `json:"email,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Page is a cursor-paginated request. Limit 0 means the upstream default.
type Page struct {
	Limit  int64
	Cursor string
}

// Client is the per-session upstream interface. One method per operation;
// write inverses (Unlike, Unrepost, Unfollow) take the record URI returned
// by the corresponding write, which callers must persist.
type Client interface {
	// Session returns the session the client is bound to. After a refresh
	// it reflects the new tokens.
	Session() *Session

	// RefreshSession exchanges the refresh token for new session tokens.
	RefreshSession(ctx context.Context) (*Session, error)

	ResolveHandle(ctx context.Context, handle string) (string, error)

	GetProfile(ctx context.Context, actor string) (*bsky.ActorDefs_ProfileViewDetailed, error)
	GetProfiles(ctx context.Context, actors []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error)
	SearchActors(ctx context.Context, query string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	GetFollowers(ctx context.Context, actor string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	GetFollows(ctx context.Context, actor string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error)

	GetTimeline(ctx context.Context, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	GetAuthorFeed(ctx context.Context, actor, filter string, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	GetFeed(ctx context.Context, feedURI string, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error)
	GetPostThread(ctx context.Context, uri string, depth int64) (*bsky.FeedDefs_ThreadViewPost, error)
	GetPosts(ctx context.Context, uris []string) ([]*bsky.FeedDefs_PostView, error)
	GetLikedBy(ctx context.Context, uri string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	GetRepostedBy(ctx context.Context, uri string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error)
	SearchPosts(ctx context.Context, query string, page Page) ([]*bsky.FeedDefs_PostView, string, error)

	// CreatePost publishes a post record and returns its AT URI and CID.
	CreatePost(ctx context.Context, post *bsky.FeedPost) (string, string, error)

	// DeleteRecord removes any record the user owns, addressed by AT URI.
	DeleteRecord(ctx context.Context, uri string) error

	// LikePost, Repost and Follow return the URI of the created record,
	// which is required for the inverse operation.
	LikePost(ctx context.Context, uri, cid string) (string, error)
	Repost(ctx context.Context, uri, cid string) (string, error)
	Follow(ctx context.Context, did string) (string, error)

	UploadBlob(ctx context.Context, r io.Reader, mimeType string) (*lexutil.LexBlob, error)

	ListNotifications(ctx context.Context, page Page) ([]*bsky.NotificationListNotifications_Notification, string, error)
	MarkNotificationsSeen(ctx context.Context) error
	UnreadNotificationCount(ctx context.Context) (int64, error)
}

// Factory builds session-scoped clients against one PDS host. Clients share
// the factory's HTTP connection pool and a conservative client-side rate
// limiter so a burst of gateway traffic cannot trip the upstream limits.
type Factory struct {
	host    string
	limiter *rate.Limiter
	http    *xrpc.Client
}

// NewFactory creates a Factory for the given PDS host. An empty host means
// DefaultHost.
func NewFactory(host string) *Factory {
	if host == "" {
		host = DefaultHost
	}
	return &Factory{
		host: host,
		// 3000 requests per 5 minutes is the documented per-IP budget.
		limiter: rate.NewLimiter(rate.Limit(10), 30),
	}
}

// Login performs the password credential exchange and returns a client
// bound to the fresh session.
func (f *Factory) Login(ctx context.Context, identifier, password string) (Client, error) {
	c := f.newClient(nil)
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := comatproto.ServerCreateSession(ctx, c.xrpc, &comatproto.ServerCreateSession_Input{
		Identifier: identifier,
		Password:   password,
	})
	if err != nil {
		return nil, normalizeError("createSession", err)
	}

	session := &Session{
		AccessJWT:  out.AccessJwt,
		RefreshJWT: out.RefreshJwt,
		DID:        out.Did,
		Handle:     out.Handle,
		CreatedAt:  time.Now().UTC(),
	}
	if out.Email != nil {
		session.Email = *out.Email
	}
	c.bind(session)
	return c, nil
}

// ForSession returns a client bound to an existing session.
func (f *Factory) ForSession(session *Session) Client {
	c := f.newClient(session)
	return c
}

func (f *Factory) newClient(session *Session) *client {
	c := &client{
		xrpc:    &xrpc.Client{Host: f.host},
		limiter: f.limiter,
	}
	if session != nil {
		c.bind(session)
	}
	return c
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package bluesky

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	bsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"github.com/bluebridge-dev/bluebridge/pkg/logger"
)

// client implements Client over indigo's XRPC client.
type client struct {
	limiter *rate.Limiter

	mu      sync.Mutex
	xrpc    *xrpc.Client
	session *Session
}

func (c *client) bind(session *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = session
	c.xrpc.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJWT,
		RefreshJwt: session.RefreshJWT,
		Did:        session.DID,
		Handle:     session.Handle,
	}
}

func (c *client) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *client) wait(ctx context.Context) error {
	return c.limiter.Wait(ctx)
}

// RefreshSession exchanges the refresh JWT for a new token pair. The XRPC
// refresh endpoint authenticates with the refresh token in the access slot.
// One transient failure is retried with backoff; auth failures are not.
func (c *client) RefreshSession(ctx context.Context) (*Session, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	refresh := &xrpc.Client{
		Host: c.xrpc.Host,
		Auth: &xrpc.AuthInfo{AccessJwt: c.session.RefreshJWT},
	}
	c.mu.Unlock()

	out, err := backoff.Retry(ctx, func() (*atproto.ServerRefreshSession_Output, error) {
		out, err := atproto.ServerRefreshSession(ctx, refresh)
		if err != nil {
			norm := normalizeError("refreshSession", err)
			if !IsTransient(norm) {
				return nil, backoff.Permanent(norm)
			}
			logger.Debugw("retrying session refresh", "error", err)
			return nil, norm
		}
		return out, nil
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(2))
	if err != nil {
		return nil, err
	}

	session := &Session{
		AccessJWT:  out.AccessJwt,
		RefreshJWT: out.RefreshJwt,
		DID:        out.Did,
		Handle:     out.Handle,
		CreatedAt:  time.Now().UTC(),
	}
	c.bind(session)
	return session, nil
}

func (c *client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := atproto.IdentityResolveHandle(ctx, c.xrpc, handle)
	if err != nil {
		return "", normalizeError("resolveHandle", err)
	}
	return out.Did, nil
}

func (c *client) GetProfile(ctx context.Context, actor string) (*bsky.ActorDefs_ProfileViewDetailed, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.ActorGetProfile(ctx, c.xrpc, actor)
	if err != nil {
		return nil, normalizeError("getProfile", err)
	}
	return out, nil
}

func (c *client) GetProfiles(ctx context.Context, actors []string) ([]*bsky.ActorDefs_ProfileViewDetailed, error) {
	if len(actors) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.ActorGetProfiles(ctx, c.xrpc, actors)
	if err != nil {
		return nil, normalizeError("getProfiles", err)
	}
	return out.Profiles, nil
}

func (c *client) SearchActors(ctx context.Context, query string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.ActorSearchActors(ctx, c.xrpc, page.Cursor, page.Limit, query, "")
	if err != nil {
		return nil, "", normalizeError("searchActors", err)
	}
	return out.Actors, cursorOf(out.Cursor), nil
}

func (c *client) GetFollowers(ctx context.Context, actor string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.GraphGetFollowers(ctx, c.xrpc, actor, page.Cursor, page.Limit)
	if err != nil {
		return nil, "", normalizeError("getFollowers", err)
	}
	return out.Followers, cursorOf(out.Cursor), nil
}

func (c *client) GetFollows(ctx context.Context, actor string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.GraphGetFollows(ctx, c.xrpc, actor, page.Cursor, page.Limit)
	if err != nil {
		return nil, "", normalizeError("getFollows", err)
	}
	return out.Follows, cursorOf(out.Cursor), nil
}

func (c *client) GetTimeline(ctx context.Context, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.FeedGetTimeline(ctx, c.xrpc, "reverse-chronological", page.Cursor, page.Limit)
	if err != nil {
		return nil, "", normalizeError("getTimeline", err)
	}
	return out.Feed, cursorOf(out.Cursor), nil
}

func (c *client) GetAuthorFeed(ctx context.Context, actor, filter string, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	if filter == "" {
		filter = "posts_with_replies"
	}
	out, err := bsky.FeedGetAuthorFeed(ctx, c.xrpc, actor, page.Cursor, filter, false, page.Limit)
	if err != nil {
		return nil, "", normalizeError("getAuthorFeed", err)
	}
	return out.Feed, cursorOf(out.Cursor), nil
}

func (c *client) GetFeed(ctx context.Context, feedURI string, page Page) ([]*bsky.FeedDefs_FeedViewPost, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.FeedGetFeed(ctx, c.xrpc, page.Cursor, feedURI, page.Limit)
	if err != nil {
		return nil, "", normalizeError("getFeed", err)
	}
	return out.Feed, cursorOf(out.Cursor), nil
}

func (c *client) GetPostThread(ctx context.Context, uri string, depth int64) (*bsky.FeedDefs_ThreadViewPost, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.FeedGetPostThread(ctx, c.xrpc, depth, 0, uri)
	if err != nil {
		return nil, normalizeError("getPostThread", err)
	}
	if out.Thread == nil || out.Thread.FeedDefs_ThreadViewPost == nil {
		return nil, errNotFound("post thread not available")
	}
	return out.Thread.FeedDefs_ThreadViewPost, nil
}

func (c *client) GetPosts(ctx context.Context, uris []string) ([]*bsky.FeedDefs_PostView, error) {
	if len(uris) == 0 {
		return nil, nil
	}
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	out, err := bsky.FeedGetPosts(ctx, c.xrpc, uris)
	if err != nil {
		return nil, normalizeError("getPosts", err)
	}
	return out.Posts, nil
}

func (c *client) GetLikedBy(ctx context.Context, uri string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.FeedGetLikes(ctx, c.xrpc, "", page.Cursor, page.Limit, uri)
	if err != nil {
		return nil, "", normalizeError("getLikes", err)
	}
	actors := make([]*bsky.ActorDefs_ProfileView, 0, len(out.Likes))
	for _, like := range out.Likes {
		if like.Actor != nil {
			actors = append(actors, like.Actor)
		}
	}
	return actors, cursorOf(out.Cursor), nil
}

func (c *client) GetRepostedBy(ctx context.Context, uri string, page Page) ([]*bsky.ActorDefs_ProfileView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.FeedGetRepostedBy(ctx, c.xrpc, "", page.Cursor, page.Limit, uri)
	if err != nil {
		return nil, "", normalizeError("getRepostedBy", err)
	}
	return out.RepostedBy, cursorOf(out.Cursor), nil
}

func (c *client) SearchPosts(ctx context.Context, query string, page Page) ([]*bsky.FeedDefs_PostView, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.FeedSearchPosts(ctx, c.xrpc,
		"", page.Cursor, "", "", page.Limit, "", query, "", "latest", nil, "", "")
	if err != nil {
		return nil, "", normalizeError("searchPosts", err)
	}
	return out.Posts, cursorOf(out.Cursor), nil
}

func (c *client) CreatePost(ctx context.Context, post *bsky.FeedPost) (string, string, error) {
	if err := c.wait(ctx); err != nil {
		return "", "", err
	}
	if post.LexiconTypeID == "" {
		post.LexiconTypeID = "app.bsky.feed.post"
	}
	out, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: "app.bsky.feed.post",
		Repo:       c.Session().DID,
		Record:     &lexutil.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return "", "", normalizeError("createPost", err)
	}
	return out.Uri, out.Cid, nil
}

func (c *client) DeleteRecord(ctx context.Context, uri string) error {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return fmt.Errorf("invalid at-uri %q: %w", uri, err)
	}
	if err := c.wait(ctx); err != nil {
		return err
	}
	_, err = atproto.RepoDeleteRecord(ctx, c.xrpc, &atproto.RepoDeleteRecord_Input{
		Collection: aturi.Collection().String(),
		Repo:       c.Session().DID,
		Rkey:       aturi.RecordKey().String(),
	})
	if err != nil {
		return normalizeError("deleteRecord", err)
	}
	return nil
}

func (c *client) LikePost(ctx context.Context, uri, cid string) (string, error) {
	return c.createRecord(ctx, "app.bsky.feed.like", &bsky.FeedLike{
		LexiconTypeID: "app.bsky.feed.like",
		Subject:       &atproto.RepoStrongRef{Uri: uri, Cid: cid},
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *client) Repost(ctx context.Context, uri, cid string) (string, error) {
	return c.createRecord(ctx, "app.bsky.feed.repost", &bsky.FeedRepost{
		LexiconTypeID: "app.bsky.feed.repost",
		Subject:       &atproto.RepoStrongRef{Uri: uri, Cid: cid},
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (c *client) Follow(ctx context.Context, did string) (string, error) {
	return c.createRecord(ctx, "app.bsky.graph.follow", &bsky.GraphFollow{
		LexiconTypeID: "app.bsky.graph.follow",
		Subject:       did,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	})
}

// createRecord writes a record and returns the URI of the created record,
// which the caller must keep to perform the inverse operation.
func (c *client) createRecord(ctx context.Context, collection string, record lexutil.CBOR) (string, error) {
	if err := c.wait(ctx); err != nil {
		return "", err
	}
	out, err := atproto.RepoCreateRecord(ctx, c.xrpc, &atproto.RepoCreateRecord_Input{
		Collection: collection,
		Repo:       c.Session().DID,
		Record:     &lexutil.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return "", normalizeError("createRecord "+collection, err)
	}
	return out.Uri, nil
}

func (c *client) UploadBlob(ctx context.Context, r io.Reader, mimeType string) (*lexutil.LexBlob, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	// Issued directly so the real MIME type reaches the PDS; the generated
	// helper hardcodes */*.
	var out atproto.RepoUploadBlob_Output
	if err := c.xrpc.Do(ctx, xrpc.Procedure, mimeType, "com.atproto.repo.uploadBlob", nil, r, &out); err != nil {
		return nil, normalizeError("uploadBlob", err)
	}
	return out.Blob, nil
}

func (c *client) ListNotifications(ctx context.Context, page Page) ([]*bsky.NotificationListNotifications_Notification, string, error) {
	if err := c.wait(ctx); err != nil {
		return nil, "", err
	}
	out, err := bsky.NotificationListNotifications(ctx, c.xrpc, page.Cursor, page.Limit, false, nil, "")
	if err != nil {
		return nil, "", normalizeError("listNotifications", err)
	}
	return out.Notifications, cursorOf(out.Cursor), nil
}

// MarkNotificationsSeen passes an explicit seenAt timestamp. The upstream
// endpoint requires the field, so "absent" is not representable here.
func (c *client) MarkNotificationsSeen(ctx context.Context) error {
	if err := c.wait(ctx); err != nil {
		return err
	}
	err := bsky.NotificationUpdateSeen(ctx, c.xrpc, &bsky.NotificationUpdateSeen_Input{
		SeenAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return normalizeError("updateSeen", err)
	}
	return nil
}

func (c *client) UnreadNotificationCount(ctx context.Context) (int64, error) {
	if err := c.wait(ctx); err != nil {
		return 0, err
	}
	out, err := bsky.NotificationGetUnreadCount(ctx, c.xrpc, false, "")
	if err != nil {
		return 0, normalizeError("getUnreadCount", err)
	}
	return out.Count, nil
}

func cursorOf(cursor *string) string {
	if cursor == nil {
		return ""
	}
	return *cursor
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"context"

	"github.com/bluebridge-dev/bluebridge/pkg/cache"
)

// Side-channel keys remembering the URI of follow, like and repost records.
// Undoing one of these upstream requires the URI of the record the write
// created, not the target; these mappings survive process restarts so the
// inverse operations keep working.
const (
	keyFollowURI = "follow_uri:"
	keyLikeURI   = "like_uri:"
	keyRepostURI = "repost_uri:"
)

// recordURIs persists and resolves the write-record URIs per user.
type recordURIs struct {
	store cache.Store
}

func (c recordURIs) saveFollow(ctx context.Context, did, subjectDID, recordURI string) error {
	return c.store.Set(ctx, keyFollowURI+did+":"+subjectDID, []byte(recordURI), 0)
}

func (c recordURIs) follow(ctx context.Context, did, subjectDID string) (string, error) {
	return c.get(ctx, keyFollowURI+did+":"+subjectDID)
}

func (c recordURIs) deleteFollow(ctx context.Context, did, subjectDID string) error {
	return c.store.Delete(ctx, keyFollowURI+did+":"+subjectDID)
}

func (c recordURIs) saveLike(ctx context.Context, did, postURI, recordURI string) error {
	return c.store.Set(ctx, keyLikeURI+did+":"+postURI, []byte(recordURI), 0)
}

func (c recordURIs) like(ctx context.Context, did, postURI string) (string, error) {
	return c.get(ctx, keyLikeURI+did+":"+postURI)
}

func (c recordURIs) deleteLike(ctx context.Context, did, postURI string) error {
	return c.store.Delete(ctx, keyLikeURI+did+":"+postURI)
}

func (c recordURIs) saveRepost(ctx context.Context, did, postURI, recordURI string) error {
	return c.store.Set(ctx, keyRepostURI+did+":"+postURI, []byte(recordURI), 0)
}

func (c recordURIs) repost(ctx context.Context, did, postURI string) (string, error) {
	return c.get(ctx, keyRepostURI+did+":"+postURI)
}

func (c recordURIs) deleteRepost(ctx context.Context, did, postURI string) error {
	return c.store.Delete(ctx, keyRepostURI+did+":"+postURI)
}

// get returns "" when the mapping is absent.
func (c recordURIs) get(ctx context.Context, key string) (string, error) {
	data, err := c.store.Get(ctx, key)
	if err == cache.ErrNotFound {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return string(data), nil
}

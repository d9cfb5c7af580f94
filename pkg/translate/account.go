// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package translate converts Bluesky domain objects into Mastodon entities.
//
// The translators are pure apart from consulting the ID mapper: every
// translation primes the DID/AT-URI/handle mappings it touches so that later
// reverse lookups (account by snowflake, status by snowflake) resolve.
package translate

import (
	"context"
	"crypto/md5" //nolint:gosec // keyed fallback avatar URL, not security
	"fmt"
	"strconv"
	"strings"
	"time"

	bsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/richtext"
)

// Translator converts upstream views into Mastodon entities.
type Translator struct {
	ids *idmap.Mapper

	// now is swappable for tests.
	now func() time.Time
}

// New creates a Translator over the given ID mapper.
func New(ids *idmap.Mapper) *Translator {
	return &Translator{ids: ids, now: time.Now}
}

// profileData is the common subset of the three upstream profile view
// shapes (detailed, view, basic).
type profileData struct {
	did         string
	handle      string
	displayName string
	description string
	avatar      string
	banner      string
	followers   int64
	following   int64
	statuses    int64
	indexedAt   string
}

// Account translates a detailed profile view.
func (t *Translator) Account(ctx context.Context, p *bsky.ActorDefs_ProfileViewDetailed) (*mastodon.Account, error) {
	return t.account(ctx, profileData{
		did:         p.Did,
		handle:      p.Handle,
		displayName: deref(p.DisplayName),
		description: deref(p.Description),
		avatar:      deref(p.Avatar),
		banner:      deref(p.Banner),
		followers:   derefInt(p.FollowersCount),
		following:   derefInt(p.FollowsCount),
		statuses:    derefInt(p.PostsCount),
		indexedAt:   deref(p.IndexedAt),
	})
}

// AccountFromView translates the mid-sized profile view used by followers,
// search and notification results.
func (t *Translator) AccountFromView(ctx context.Context, p *bsky.ActorDefs_ProfileView) (*mastodon.Account, error) {
	return t.account(ctx, profileData{
		did:         p.Did,
		handle:      p.Handle,
		displayName: deref(p.DisplayName),
		description: deref(p.Description),
		avatar:      deref(p.Avatar),
		indexedAt:   deref(p.IndexedAt),
	})
}

// AccountFromBasic translates the minimal profile view embedded in posts.
func (t *Translator) AccountFromBasic(ctx context.Context, p *bsky.ActorDefs_ProfileViewBasic) (*mastodon.Account, error) {
	return t.account(ctx, profileData{
		did:         p.Did,
		handle:      p.Handle,
		displayName: deref(p.DisplayName),
		avatar:      deref(p.Avatar),
		indexedAt:   deref(p.CreatedAt),
	})
}

func (t *Translator) account(ctx context.Context, p profileData) (*mastodon.Account, error) {
	sf, err := t.ids.SnowflakeForDID(ctx, p.did)
	if err != nil {
		return nil, fmt.Errorf("mapping did %s: %w", p.did, err)
	}
	if err := t.ids.PrimeHandle(ctx, p.handle, p.did); err != nil {
		return nil, err
	}

	displayName := p.displayName
	if displayName == "" {
		displayName = p.handle
	}

	avatar := p.avatar
	if avatar == "" {
		avatar = fallbackAvatar(p.did)
	}

	createdAt := t.now().UTC()
	if ts, err := time.Parse(time.RFC3339, p.indexedAt); err == nil {
		createdAt = ts.UTC()
	}

	return &mastodon.Account{
		ID:             strconv.FormatInt(sf, 10),
		Username:       usernameOf(p.handle),
		Acct:           p.handle,
		DisplayName:    displayName,
		Note:           richtext.RenderPlain(p.description),
		Avatar:         avatar,
		AvatarStatic:   avatar,
		Header:         p.banner,
		HeaderStatic:   p.banner,
		FollowersCount: p.followers,
		FollowingCount: p.following,
		StatusesCount:  p.statuses,
		CreatedAt:      createdAt,
		URL:            "https://bsky.app/profile/" + p.handle,
		Emojis:         []mastodon.CustomEmoji{},
		Fields:         []mastodon.AccountField{},
	}, nil
}

// Relationship translates upstream viewer state into a Mastodon
// relationship for the given account.
func (t *Translator) Relationship(ctx context.Context, did string, viewer *bsky.ActorDefs_ViewerState) (*mastodon.Relationship, error) {
	sf, err := t.ids.SnowflakeForDID(ctx, did)
	if err != nil {
		return nil, err
	}

	rel := &mastodon.Relationship{
		ID:             strconv.FormatInt(sf, 10),
		ShowingReblogs: true,
	}
	if viewer != nil {
		rel.Following = viewer.Following != nil
		rel.FollowedBy = viewer.FollowedBy != nil
		rel.Blocking = viewer.Blocking != nil
		rel.BlockedBy = viewer.BlockedBy != nil && *viewer.BlockedBy
		rel.Muting = viewer.Muted != nil && *viewer.Muted
	}
	return rel, nil
}

// usernameOf returns the first label of a handle: "alice" for
// "alice.bsky.social".
func usernameOf(handle string) string {
	if i := strings.IndexByte(handle, '.'); i > 0 {
		return handle[:i]
	}
	return handle
}

// fallbackAvatar returns a deterministic identicon URL for accounts with no
// avatar, keyed by the DID so it never changes.
func fallbackAvatar(did string) string {
	sum := md5.Sum([]byte(did)) //nolint:gosec
	return fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=identicon&s=256", sum)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(n *int64) int64 {
	if n == nil {
		return 0
	}
	return *n
}

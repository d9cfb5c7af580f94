// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package translate

import (
	"context"
	"strconv"
	"time"

	bsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
)

// notificationTypes maps upstream notification reasons to Mastodon
// notification types. Reasons with no Mastodon equivalent are skipped.
var notificationTypes = map[string]string{
	"like":    "favourite",
	"repost":  "reblog",
	"follow":  "follow",
	"reply":   "mention",
	"mention": "mention",
	"quote":   "mention",
}

// SubjectURI returns the AT URI of the post a notification refers to, or ""
// for notification kinds with no subject (follows). Likes and reposts point
// at the liked post via reasonSubject; replies, mentions and quotes are the
// post itself.
func SubjectURI(n *bsky.NotificationListNotifications_Notification) string {
	switch n.Reason {
	case "like", "repost":
		if n.ReasonSubject != nil {
			return *n.ReasonSubject
		}
		return ""
	case "reply", "mention", "quote":
		return n.Uri
	default:
		return ""
	}
}

// Notification translates an upstream notification. subject is the resolved
// post view for the URI returned by SubjectURI, or nil when there is none;
// the caller batches the resolution. Returns (nil, nil) for reasons that
// have no Mastodon counterpart.
func (t *Translator) Notification(
	ctx context.Context,
	n *bsky.NotificationListNotifications_Notification,
	subject *bsky.FeedDefs_PostView,
) (*mastodon.Notification, error) {
	kind, ok := notificationTypes[n.Reason]
	if !ok {
		return nil, nil
	}

	sf, err := t.ids.SnowflakeForATURI(ctx, n.Uri)
	if err != nil {
		return nil, err
	}

	account, err := t.AccountFromView(ctx, n.Author)
	if err != nil {
		return nil, err
	}

	out := &mastodon.Notification{
		ID:        strconv.FormatInt(sf, 10),
		Type:      kind,
		CreatedAt: t.now().UTC(),
		Account:   account,
	}
	if ts, err := time.Parse(time.RFC3339, n.IndexedAt); err == nil {
		out.CreatedAt = ts.UTC()
	}

	if subject != nil {
		status, err := t.Status(ctx, subject)
		if err != nil {
			return nil, err
		}
		out.Status = status
	}

	return out, nil
}

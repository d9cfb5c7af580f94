// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package translate

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bsky "github.com/bluesky-social/indigo/api/bsky"

	"github.com/bluebridge-dev/bluebridge/pkg/idmap"
	"github.com/bluebridge-dev/bluebridge/pkg/mastodon"
	"github.com/bluebridge-dev/bluebridge/pkg/richtext"
)

// sensitiveLabels are the upstream moderation label values that mark a
// post's media as sensitive.
var sensitiveLabels = map[string]bool{
	"porn":          true,
	"sexual":        true,
	"nudity":        true,
	"graphic-media": true,
	"gore":          true,
}

// Status translates a post view into a Mastodon status.
func (t *Translator) Status(ctx context.Context, pv *bsky.FeedDefs_PostView) (*mastodon.Status, error) {
	sf, err := t.ids.SnowflakeForATURI(ctx, pv.Uri)
	if err != nil {
		return nil, fmt.Errorf("mapping at-uri %s: %w", pv.Uri, err)
	}

	account, err := t.AccountFromBasic(ctx, pv.Author)
	if err != nil {
		return nil, err
	}

	status := &mastodon.Status{
		ID:               strconv.FormatInt(sf, 10),
		Account:          account,
		Visibility:       "public",
		FavouritesCount:  derefInt(pv.LikeCount),
		ReblogsCount:     derefInt(pv.RepostCount),
		RepliesCount:     derefInt(pv.ReplyCount),
		MediaAttachments: []mastodon.MediaAttachment{},
		Mentions:         []mastodon.Mention{},
		Tags:             []mastodon.Tag{},
		Emojis:           []mastodon.CustomEmoji{},
	}

	rkey := idmap.RecordKeyFromATURI(pv.Uri)
	status.URI = fmt.Sprintf("https://bsky.app/profile/%s/post/%s", pv.Author.Handle, rkey)
	status.URL = status.URI

	status.CreatedAt = t.now().UTC()
	if ts, err := time.Parse(time.RFC3339, pv.IndexedAt); err == nil {
		status.CreatedAt = ts.UTC()
	}

	if post, ok := postRecord(pv); ok {
		if err := t.applyPostRecord(ctx, status, post); err != nil {
			return nil, err
		}
	}

	if pv.Viewer != nil {
		status.Favourited = pv.Viewer.Like != nil
		status.Reblogged = pv.Viewer.Repost != nil
	}

	for _, label := range pv.Labels {
		if label != nil && sensitiveLabels[label.Val] {
			status.Sensitive = true
			break
		}
	}

	if pv.Embed != nil {
		if err := t.applyEmbed(ctx, status, pv.Embed); err != nil {
			return nil, err
		}
	}

	return status, nil
}

// StatusFromFeedItem translates a feed entry. Reposts become a wrapper
// status whose reblog field carries the original, matching how Mastodon
// models boosts.
func (t *Translator) StatusFromFeedItem(ctx context.Context, item *bsky.FeedDefs_FeedViewPost) (*mastodon.Status, error) {
	inner, err := t.Status(ctx, item.Post)
	if err != nil {
		return nil, err
	}

	if item.Reason == nil || item.Reason.FeedDefs_ReasonRepost == nil {
		return inner, nil
	}

	repost := item.Reason.FeedDefs_ReasonRepost
	booster, err := t.AccountFromBasic(ctx, repost.By)
	if err != nil {
		return nil, err
	}

	// The wrapper needs its own stable ID; derive it from the pair of
	// reposter and post so the same boost always maps to the same snowflake.
	wrapperID := idmap.HashSnowflake(repost.By.Did + "#repost#" + item.Post.Uri)

	createdAt := inner.CreatedAt
	if ts, err := time.Parse(time.RFC3339, repost.IndexedAt); err == nil {
		createdAt = ts.UTC()
	}

	return &mastodon.Status{
		ID:               strconv.FormatInt(wrapperID, 10),
		URI:              inner.URI,
		URL:              inner.URL,
		Account:          booster,
		CreatedAt:        createdAt,
		Visibility:       "public",
		Reblog:           inner,
		MediaAttachments: []mastodon.MediaAttachment{},
		Mentions:         []mastodon.Mention{},
		Tags:             []mastodon.Tag{},
		Emojis:           []mastodon.CustomEmoji{},
	}, nil
}

// applyPostRecord fills the fields that come from the post record itself:
// content, creation time, reply linkage, mentions and tags.
func (t *Translator) applyPostRecord(ctx context.Context, status *mastodon.Status, post *bsky.FeedPost) error {
	status.Content = richtext.Render(post.Text, post.Facets)

	if ts, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
		status.CreatedAt = ts.UTC()
	}

	if len(post.Langs) > 0 {
		lang := post.Langs[0]
		status.Language = &lang
	}

	if post.Reply != nil && post.Reply.Parent != nil {
		parentURI := post.Reply.Parent.Uri
		parentSF, err := t.ids.SnowflakeForATURI(ctx, parentURI)
		if err != nil {
			return err
		}
		id := strconv.FormatInt(parentSF, 10)
		status.InReplyToID = &id

		if did := idmap.DIDFromATURI(parentURI); did != "" {
			accountSF, err := t.ids.SnowflakeForDID(ctx, did)
			if err != nil {
				return err
			}
			accountID := strconv.FormatInt(accountSF, 10)
			status.InReplyToAccountID = &accountID
		}
	}

	for _, m := range richtext.Mentions(post.Text, post.Facets) {
		sf, err := t.ids.SnowflakeForDID(ctx, m.DID)
		if err != nil {
			return err
		}
		status.Mentions = append(status.Mentions, mastodon.Mention{
			ID:       strconv.FormatInt(sf, 10),
			Username: usernameOf(m.Handle),
			Acct:     m.Handle,
			URL:      "https://bsky.app/profile/" + m.Handle,
		})
	}

	for _, tag := range richtext.Tags(post.Facets) {
		status.Tags = append(status.Tags, mastodon.Tag{
			Name: tag,
			URL:  "https://bsky.app/hashtag/" + tag,
		})
	}

	return nil
}

// applyEmbed maps upstream embeds: images become media attachments,
// external links become a preview card, and quoted records become the
// reblog reference.
func (t *Translator) applyEmbed(ctx context.Context, status *mastodon.Status, embed *bsky.FeedDefs_PostView_Embed) error {
	switch {
	case embed.EmbedImages_View != nil:
		for _, img := range embed.EmbedImages_View.Images {
			status.MediaAttachments = append(status.MediaAttachments, imageAttachment(img))
		}

	case embed.EmbedExternal_View != nil && embed.EmbedExternal_View.External != nil:
		ext := embed.EmbedExternal_View.External
		status.Card = &mastodon.Card{
			URL:         ext.Uri,
			Title:       ext.Title,
			Description: ext.Description,
			Type:        "link",
			Image:       deref(ext.Thumb),
		}

	case embed.EmbedRecord_View != nil:
		return t.applyQuote(ctx, status, embed.EmbedRecord_View)

	case embed.EmbedRecordWithMedia_View != nil:
		rwm := embed.EmbedRecordWithMedia_View
		if rwm.Media != nil && rwm.Media.EmbedImages_View != nil {
			for _, img := range rwm.Media.EmbedImages_View.Images {
				status.MediaAttachments = append(status.MediaAttachments, imageAttachment(img))
			}
		}
		if rwm.Record != nil {
			return t.applyQuote(ctx, status, rwm.Record)
		}
	}
	return nil
}

// applyQuote models a quoted record as a reblog reference.
func (t *Translator) applyQuote(ctx context.Context, status *mastodon.Status, view *bsky.EmbedRecord_View) error {
	if view.Record == nil || view.Record.EmbedRecord_ViewRecord == nil {
		return nil
	}
	quoted := view.Record.EmbedRecord_ViewRecord

	sf, err := t.ids.SnowflakeForATURI(ctx, quoted.Uri)
	if err != nil {
		return err
	}
	account, err := t.AccountFromBasic(ctx, quoted.Author)
	if err != nil {
		return err
	}

	reblog := &mastodon.Status{
		ID:               strconv.FormatInt(sf, 10),
		Account:          account,
		Visibility:       "public",
		MediaAttachments: []mastodon.MediaAttachment{},
		Mentions:         []mastodon.Mention{},
		Tags:             []mastodon.Tag{},
		Emojis:           []mastodon.CustomEmoji{},
	}

	rkey := idmap.RecordKeyFromATURI(quoted.Uri)
	reblog.URI = fmt.Sprintf("https://bsky.app/profile/%s/post/%s", quoted.Author.Handle, rkey)
	reblog.URL = reblog.URI

	reblog.CreatedAt = t.now().UTC()
	if ts, err := time.Parse(time.RFC3339, quoted.IndexedAt); err == nil {
		reblog.CreatedAt = ts.UTC()
	}

	if quoted.Value != nil {
		if post, ok := quoted.Value.Val.(*bsky.FeedPost); ok {
			reblog.Content = richtext.Render(post.Text, post.Facets)
			if ts, err := time.Parse(time.RFC3339, post.CreatedAt); err == nil {
				reblog.CreatedAt = ts.UTC()
			}
		}
	}

	status.Reblog = reblog
	return nil
}

func imageAttachment(img *bsky.EmbedImages_ViewImage) mastodon.MediaAttachment {
	att := mastodon.MediaAttachment{
		ID:         strconv.FormatInt(idmap.HashSnowflake(img.Fullsize), 10),
		Type:       "image",
		URL:        img.Fullsize,
		PreviewURL: img.Thumb,
	}
	if img.Alt != "" {
		alt := img.Alt
		att.Description = &alt
	}
	return att
}

// postRecord extracts the FeedPost record from a post view, when present.
func postRecord(pv *bsky.FeedDefs_PostView) (*bsky.FeedPost, bool) {
	if pv.Record == nil {
		return nil, false
	}
	post, ok := pv.Record.Val.(*bsky.FeedPost)
	return post, ok
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package richtext

import (
	"context"
	"regexp"
	"strings"

	bsky "github.com/bluesky-social/indigo/api/bsky"
)

const (
	facetLink    = "app.bsky.richtext.facet#link"
	facetMention = "app.bsky.richtext.facet#mention"
	facetTag     = "app.bsky.richtext.facet#tag"
)

// Byte-offset patterns over the raw UTF-8 text. Handles follow the AT
// Protocol handle grammar (dotted domain labels); tags stop at punctuation.
var (
	mentionPattern = regexp.MustCompile(`(?:^|\s)(@([a-zA-Z0-9][a-zA-Z0-9.-]*\.[a-zA-Z]{2,}))`)
	linkPattern    = regexp.MustCompile(`https?://[^\s<>"]+`)
	tagPattern     = regexp.MustCompile(`(?:^|\s)(#([a-zA-Z0-9_]+))`)
)

// HandleResolver turns a handle into a DID. Unresolvable handles return an
// empty DID with no error; the mention is then left as plain text, which is
// how Bluesky clients treat unknown handles.
type HandleResolver func(ctx context.Context, handle string) (string, error)

// Detect scans post text for mentions, links and hashtags and builds the
// corresponding facets with byte-offset indices. resolver may be nil, in
// which case mentions are skipped.
func Detect(ctx context.Context, text string, resolver HandleResolver) ([]*bsky.RichtextFacet, error) {
	var facets []*bsky.RichtextFacet

	if resolver != nil {
		for _, m := range mentionPattern.FindAllStringSubmatchIndex(text, -1) {
			start, end := m[2], m[3]
			handle := text[m[4]:m[5]]
			did, err := resolver(ctx, handle)
			if err != nil {
				return nil, err
			}
			if did == "" {
				continue
			}
			facets = append(facets, facet(start, end, &bsky.RichtextFacet_Features_Elem{
				RichtextFacet_Mention: &bsky.RichtextFacet_Mention{
					LexiconTypeID: facetMention,
					Did:           did,
				},
			}))
		}
	}

	for _, m := range linkPattern.FindAllStringIndex(text, -1) {
		start, end := m[0], m[1]
		// Trailing sentence punctuation is not part of the URL.
		uri := strings.TrimRight(text[start:end], ".,;:!?)")
		end = start + len(uri)
		facets = append(facets, facet(start, end, &bsky.RichtextFacet_Features_Elem{
			RichtextFacet_Link: &bsky.RichtextFacet_Link{
				LexiconTypeID: facetLink,
				Uri:           uri,
			},
		}))
	}

	for _, m := range tagPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		facets = append(facets, facet(start, end, &bsky.RichtextFacet_Features_Elem{
			RichtextFacet_Tag: &bsky.RichtextFacet_Tag{
				LexiconTypeID: facetTag,
				Tag:           text[m[4]:m[5]],
			},
		}))
	}

	return facets, nil
}

func facet(start, end int, feature *bsky.RichtextFacet_Features_Elem) *bsky.RichtextFacet {
	return &bsky.RichtextFacet{
		Index: &bsky.RichtextFacet_ByteSlice{
			ByteStart: int64(start),
			ByteEnd:   int64(end),
		},
		Features: []*bsky.RichtextFacet_Features_Elem{feature},
	}
}

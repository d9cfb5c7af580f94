// Package richtext renders Bluesky rich text (plain text plus byte-range
// facets) into the HTML fragments Mastodon clients expect.
//
// Facet indices are byte offsets into the UTF-8 encoding of the text, never
// character offsets, so all slicing here is byte-based. Offsets arriving
// from upstream are trusted to fall on rune boundaries; out-of-range or
// overlapping offsets are clamped so the output is always well-formed.
package richtext

import (
	"fmt"
	"sort"
	"strings"

	bsky "github.com/bluesky-social/indigo/api/bsky"
)

var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// escape HTML-escapes literal text and turns newlines into <br>.
func escape(s string) string {
	return strings.ReplaceAll(htmlEscaper.Replace(s), "\n", "<br>")
}

// escapeAttr HTML-escapes an attribute value. Newlines stay literal.
func escapeAttr(s string) string {
	return htmlEscaper.Replace(s)
}

// Render converts text and its facets into a single <p>…</p> fragment.
func Render(text string, facets []*bsky.RichtextFacet) string {
	var b strings.Builder
	b.WriteString("<p>")

	cursor := 0
	for _, f := range sortedFacets(facets) {
		start, end := clampRange(f, cursor, len(text))
		if start >= end {
			continue
		}

		b.WriteString(escape(text[cursor:start]))
		writeFacet(&b, text[start:end], f)
		cursor = end
	}

	b.WriteString(escape(text[cursor:]))
	b.WriteString("</p>")
	return b.String()
}

// RenderPlain renders text with no facets: escape, newline conversion, and
// the <p> wrapper. Used for profile descriptions.
func RenderPlain(text string) string {
	return "<p>" + escape(text) + "</p>"
}

// Mention is a mention facet paired with its visible text.
type Mention struct {
	// DID is the mentioned account's DID.
	DID string

	// Handle is the visible text without the leading @.
	Handle string
}

// Mentions extracts the mention facets from text.
func Mentions(text string, facets []*bsky.RichtextFacet) []Mention {
	var out []Mention
	cursor := 0
	for _, f := range sortedFacets(facets) {
		start, end := clampRange(f, cursor, len(text))
		if start >= end {
			continue
		}
		cursor = end

		feat := firstFeature(f)
		if feat == nil || feat.RichtextFacet_Mention == nil {
			continue
		}
		out = append(out, Mention{
			DID:    feat.RichtextFacet_Mention.Did,
			Handle: strings.TrimPrefix(text[start:end], "@"),
		})
	}
	return out
}

// Tags extracts the hashtag names from the facets.
func Tags(facets []*bsky.RichtextFacet) []string {
	var out []string
	for _, f := range sortedFacets(facets) {
		feat := firstFeature(f)
		if feat == nil || feat.RichtextFacet_Tag == nil {
			continue
		}
		out = append(out, feat.RichtextFacet_Tag.Tag)
	}
	return out
}

func sortedFacets(facets []*bsky.RichtextFacet) []*bsky.RichtextFacet {
	sorted := make([]*bsky.RichtextFacet, 0, len(facets))
	for _, f := range facets {
		if f != nil && f.Index != nil {
			sorted = append(sorted, f)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Index.ByteStart < sorted[j].Index.ByteStart
	})
	return sorted
}

// clampRange bounds a facet's byte range to [cursor, limit]. Overlap with an
// earlier facet is resolved by trimming the later facet's start.
func clampRange(f *bsky.RichtextFacet, cursor, limit int) (int, int) {
	start := int(f.Index.ByteStart)
	end := int(f.Index.ByteEnd)
	if start < cursor {
		start = cursor
	}
	if end > limit {
		end = limit
	}
	return start, end
}

func firstFeature(f *bsky.RichtextFacet) *bsky.RichtextFacet_Features_Elem {
	if len(f.Features) == 0 {
		return nil
	}
	return f.Features[0]
}

func writeFacet(b *strings.Builder, visible string, f *bsky.RichtextFacet) {
	feat := firstFeature(f)
	switch {
	case feat == nil:
		b.WriteString(escape(visible))

	case feat.RichtextFacet_Link != nil:
		fmt.Fprintf(b, `<a href="%s" target="_blank" rel="nofollow noopener noreferrer">%s</a>`,
			escapeAttr(feat.RichtextFacet_Link.Uri), escape(visible))

	case feat.RichtextFacet_Mention != nil:
		// The DID is used by the translator to prime ID mappings; the HTML
		// links through the handle.
		handle := escape(strings.TrimPrefix(visible, "@"))
		fmt.Fprintf(b, `<span class="h-card"><a href="https://bsky.app/profile/%s" class="u-url mention">@%s</a></span>`,
			handle, handle)

	case feat.RichtextFacet_Tag != nil:
		tag := escape(feat.RichtextFacet_Tag.Tag)
		fmt.Fprintf(b, `<a href="https://bsky.app/hashtag/%s" class="mention hashtag">#%s</a>`,
			tag, tag)

	default:
		b.WriteString(escape(visible))
	}
}

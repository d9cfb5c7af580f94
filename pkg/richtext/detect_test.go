// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package richtext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolveAlice(_ context.Context, handle string) (string, error) {
	if handle == "alice.bsky.social" {
		return "did:plc:alice", nil
	}
	return "", nil
}

func TestDetectMention(t *testing.T) {
	t.Parallel()

	facets, err := Detect(context.Background(), "hey @alice.bsky.social how are you", resolveAlice)
	require.NoError(t, err)
	require.Len(t, facets, 1)

	f := facets[0]
	assert.Equal(t, int64(4), f.Index.ByteStart)
	assert.Equal(t, int64(22), f.Index.ByteEnd)
	require.NotNil(t, f.Features[0].RichtextFacet_Mention)
	assert.Equal(t, "did:plc:alice", f.Features[0].RichtextFacet_Mention.Did)
}

func TestDetectUnresolvableMentionSkipped(t *testing.T) {
	t.Parallel()

	facets, err := Detect(context.Background(), "hey @nobody.example.com", resolveAlice)
	require.NoError(t, err)
	assert.Empty(t, facets)
}

func TestDetectLink(t *testing.T) {
	t.Parallel()

	facets, err := Detect(context.Background(), "see https://example.com/a?b=c.", nil)
	require.NoError(t, err)
	require.Len(t, facets, 1)

	f := facets[0]
	require.NotNil(t, f.Features[0].RichtextFacet_Link)
	assert.Equal(t, "https://example.com/a?b=c", f.Features[0].RichtextFacet_Link.Uri,
		"trailing period is not part of the URL")
	assert.Equal(t, int64(4), f.Index.ByteStart)
	assert.Equal(t, int64(29), f.Index.ByteEnd)
}

func TestDetectTag(t *testing.T) {
	t.Parallel()

	facets, err := Detect(context.Background(), "shipping #golang today", nil)
	require.NoError(t, err)
	require.Len(t, facets, 1)

	f := facets[0]
	require.NotNil(t, f.Features[0].RichtextFacet_Tag)
	assert.Equal(t, "golang", f.Features[0].RichtextFacet_Tag.Tag)
	assert.Equal(t, int64(9), f.Index.ByteStart)
	assert.Equal(t, int64(16), f.Index.ByteEnd)
}

func TestDetectMixed(t *testing.T) {
	t.Parallel()

	text := "@alice.bsky.social check https://example.com #news"
	facets, err := Detect(context.Background(), text, resolveAlice)
	require.NoError(t, err)
	assert.Len(t, facets, 3)
}

func TestDetectMultibyteOffsets(t *testing.T) {
	t.Parallel()

	// The emoji is four UTF-8 bytes; offsets count bytes, not runes.
	facets, err := Detect(context.Background(), "\U0001F44B @alice.bsky.social", resolveAlice)
	require.NoError(t, err)
	require.Len(t, facets, 1)
	assert.Equal(t, int64(5), facets[0].Index.ByteStart)
	assert.Equal(t, int64(23), facets[0].Index.ByteEnd)
}

func TestDetectNothing(t *testing.T) {
	t.Parallel()

	facets, err := Detect(context.Background(), "plain text with email@example.com inside", resolveAlice)
	require.NoError(t, err)
	assert.Empty(t, facets)
}

// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package idmap maintains the bidirectional mapping between Bluesky
// identifiers (DIDs, AT URIs, handles) and the snowflake IDs Mastodon
// clients require.
//
// Mappings are deterministic so that any process sharing the cache resolves
// the same identifier to the same snowflake, indefinitely:
//
//   - DIDs hash to a snowflake via SHA-256.
//   - AT URIs derive a snowflake from the record key's TID timestamp when it
//     parses, so status IDs sort chronologically; the worker and sequence
//     bits come from the URI hash to keep same-millisecond posts distinct.
//     Unparseable record keys fall back to the DID-style hash.
//
// Both directions of every mapping are written to the cache without expiry.
package idmap

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"

	"github.com/bluesky-social/indigo/atproto/syntax"

	"github.com/bluebridge-dev/bluebridge/pkg/cache"
	"github.com/bluebridge-dev/bluebridge/pkg/snowflake"
)

// Cache key prefixes. These are part of the deployed data model; renaming
// them orphans every mapping already in the cache.
const (
	keyDIDToSnowflake   = "did_to_snowflake:"
	keySnowflakeToDID   = "snowflake_to_did:"
	keyATURIToSnowflake = "at_uri_to_snowflake:"
	keySnowflakeToATURI = "snowflake_to_at_uri:"
	keyHandleToDID      = "handle_to_did:"
)

// maxDerivedMillis is the largest timestamp representable in the snowflake's
// 41 timestamp bits. TIDs outside [Epoch, maxDerivedMillis] use the hash path.
const maxDerivedMillis = snowflake.Epoch + (1<<41 - 1)

// Mapper resolves identifiers in both directions, priming the cache on first
// sight. It is stateless; all contention lives in the cache.
type Mapper struct {
	store cache.Store
}

// New creates a Mapper over the given store.
func New(store cache.Store) *Mapper {
	return &Mapper{store: store}
}

// SnowflakeForDID returns the snowflake for a DID, computing and priming it
// on first lookup.
func (m *Mapper) SnowflakeForDID(ctx context.Context, did string) (int64, error) {
	if sf, err := m.lookup(ctx, keyDIDToSnowflake+did); err == nil {
		return sf, nil
	} else if err != cache.ErrNotFound {
		return 0, err
	}

	sf := hashToSnowflake(did)
	if err := m.prime(ctx, keyDIDToSnowflake+did, keySnowflakeToDID, sf, did); err != nil {
		return 0, err
	}
	return sf, nil
}

// DIDForSnowflake is the reverse lookup. It only succeeds once the forward
// mapping has been primed; a cold cache returns cache.ErrNotFound.
func (m *Mapper) DIDForSnowflake(ctx context.Context, sf int64) (string, error) {
	data, err := m.store.Get(ctx, keySnowflakeToDID+strconv.FormatInt(sf, 10))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SnowflakeForATURI returns the snowflake for an AT URI, deriving it from
// the record key's TID timestamp when possible.
func (m *Mapper) SnowflakeForATURI(ctx context.Context, uri string) (int64, error) {
	if sf, err := m.lookup(ctx, keyATURIToSnowflake+uri); err == nil {
		return sf, nil
	} else if err != cache.ErrNotFound {
		return 0, err
	}

	sf := deriveFromATURI(uri)
	if err := m.prime(ctx, keyATURIToSnowflake+uri, keySnowflakeToATURI, sf, uri); err != nil {
		return 0, err
	}
	return sf, nil
}

// ATURIForSnowflake is the reverse lookup; cache-only, like DIDForSnowflake.
func (m *Mapper) ATURIForSnowflake(ctx context.Context, sf int64) (string, error) {
	data, err := m.store.Get(ctx, keySnowflakeToATURI+strconv.FormatInt(sf, 10))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SnowflakeForHandle chains handle → DID → snowflake. It returns 0 (with no
// error) when the handle has not been primed; the caller must resolve the
// handle upstream, call PrimeHandle, and retry.
func (m *Mapper) SnowflakeForHandle(ctx context.Context, handle string) (int64, error) {
	data, err := m.store.Get(ctx, keyHandleToDID+handle)
	if err == cache.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return m.SnowflakeForDID(ctx, string(data))
}

// PrimeHandle records the handle → DID resolution so SnowflakeForHandle can
// chain through it. Handles can be re-pointed at a different DID upstream,
// so priming always overwrites.
func (m *Mapper) PrimeHandle(ctx context.Context, handle, did string) error {
	return m.store.Set(ctx, keyHandleToDID+handle, []byte(did), 0)
}

func (m *Mapper) lookup(ctx context.Context, key string) (int64, error) {
	data, err := m.store.Get(ctx, key)
	if err != nil {
		return 0, err
	}
	sf, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt mapping under %s: %w", key, err)
	}
	return sf, nil
}

// prime writes both directions of a mapping, without expiry.
func (m *Mapper) prime(ctx context.Context, forwardKey, reversePrefix string, sf int64, id string) error {
	sfStr := strconv.FormatInt(sf, 10)
	if err := m.store.Set(ctx, forwardKey, []byte(sfStr), 0); err != nil {
		return err
	}
	return m.store.Set(ctx, reversePrefix+sfStr, []byte(id), 0)
}

// HashSnowflake maps an arbitrary identifier to a stable positive snowflake
// without touching the cache. Used for synthetic IDs that never need a
// reverse lookup, such as media attachments and repost wrappers.
func HashSnowflake(id string) int64 {
	return hashToSnowflake(id)
}

// hashToSnowflake maps an arbitrary identifier to a stable positive
// snowflake: SHA-256, first 8 bytes big-endian, absolute value.
func hashToSnowflake(id string) int64 {
	sum := sha256.Sum256([]byte(id))
	v := int64(binary.BigEndian.Uint64(sum[:8]))
	if v == math.MinInt64 {
		// Negation overflows; clearing the sign bit keeps it deterministic.
		return v &^ math.MinInt64
	}
	if v < 0 {
		return -v
	}
	return v
}

// deriveFromATURI builds a time-sorted snowflake from the URI's TID record
// key. Worker and sequence bits come from SHA-256 of the full URI (bytes
// 8..9 masked to 10 bits and bytes 10..11 masked to 12 bits) so that two
// posts in the same millisecond stay distinct. Anything unparseable, or a
// timestamp outside the snowflake's 41-bit range, falls back to the hash.
func deriveFromATURI(uri string) int64 {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return hashToSnowflake(uri)
	}

	tid, err := syntax.ParseTID(aturi.RecordKey().String())
	if err != nil {
		return hashToSnowflake(uri)
	}

	millis := tid.Time().UnixMilli()
	if millis < snowflake.Epoch || millis > maxDerivedMillis {
		return hashToSnowflake(uri)
	}

	sum := sha256.Sum256([]byte(uri))
	worker := int64(binary.BigEndian.Uint16(sum[8:10])) & snowflake.MaxWorkerID
	sequence := int64(binary.BigEndian.Uint16(sum[10:12])) & snowflake.MaxSequence

	return snowflake.Build(millis, worker, sequence)
}

// DIDFromATURI extracts the authority DID from an AT URI, or "" when the
// URI does not parse or its authority is a handle.
func DIDFromATURI(uri string) string {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return ""
	}
	did, err := aturi.Authority().AsDID()
	if err != nil {
		return ""
	}
	return did.String()
}

// RecordKeyFromATURI extracts the record key (rkey) from an AT URI, or ""
// when the URI does not parse.
func RecordKeyFromATURI(uri string) string {
	aturi, err := syntax.ParseATURI(uri)
	if err != nil {
		return ""
	}
	return aturi.RecordKey().String()
}

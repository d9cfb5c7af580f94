// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

package v1

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bluebridge-dev/bluebridge/pkg/bluesky"
)

const (
	defaultLimit = 20
	maxLimit     = 40
)

// pageFromRequest builds the upstream page from the Mastodon pagination
// parameters. The upstream cursor rides in max_id: the Link header below
// hands it back to the client, which replays it verbatim.
func pageFromRequest(r *http.Request) bluesky.Page {
	return bluesky.Page{
		Limit:  parseLimit(r),
		Cursor: r.URL.Query().Get("max_id"),
	}
}

func parseLimit(r *http.Request) int64 {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// writeLinkHeader advertises the next page when the upstream returned a
// cursor. There is no prev: upstream cursors only move forward.
func writeLinkHeader(w http.ResponseWriter, r *http.Request, nextCursor string) {
	if nextCursor == "" {
		return
	}
	q := url.Values{}
	q.Set("limit", strconv.FormatInt(parseLimit(r), 10))
	q.Set("max_id", nextCursor)

	scheme := "https"
	if r.TLS == nil {
		scheme = "http"
	}
	next := fmt.Sprintf("<%s://%s%s?%s>; rel=\"next\"", scheme, r.Host, r.URL.Path, q.Encode())
	w.Header().Set("Link", next)
}

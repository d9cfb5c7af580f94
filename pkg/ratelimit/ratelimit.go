// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit implements the gateway's token-bucket limiter over the
// shared cache, so every instance observing the same cache makes the same
// decision.
//
// Bucket state is (tokens, last refill timestamp) per key. The refill is
// computed deterministically from wall time; no background goroutine tops
// buckets up. Two instances racing on the same bucket can each read the same
// state and both allow a request where only one should have. That over-allow
// is bounded at one unit per race and is accepted.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/bluebridge-dev/bluebridge/pkg/cache"
)

// Scopes partition buckets by how the caller is identified.
const (
	// ScopeIP keys unauthenticated traffic by client address.
	ScopeIP = "ip"

	// ScopeUser keys authenticated traffic by DID.
	ScopeUser = "user"
)

const keyPrefix = "ratelimit:"

// Config sets the window and per-scope capacities.
type Config struct {
	// Window is the refill period. The whole capacity regenerates over one
	// window.
	Window time.Duration

	// Capacity maps scope to the number of requests allowed per window.
	Capacity map[string]int
}

// DefaultConfig is 300 unauthenticated and 1000 authenticated requests per
// five minutes.
func DefaultConfig() Config {
	return Config{
		Window: 5 * time.Minute,
		Capacity: map[string]int{
			ScopeIP:   300,
			ScopeUser: 1000,
		},
	}
}

// Decision is the outcome of one bucket check, with everything the HTTP
// layer needs for the X-RateLimit response headers.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter checks and updates buckets in the cache.
type Limiter struct {
	store cache.Store
	cfg   Config
	now   func() time.Time
}

// New creates a Limiter. Zero or missing config fields fall back to the
// defaults.
func New(store cache.Store, cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if len(cfg.Capacity) == 0 {
		cfg.Capacity = def.Capacity
	}
	return &Limiter{store: store, cfg: cfg, now: time.Now}
}

// bucket is the persisted state. Tokens is fractional because refill accrues
// continuously.
type bucket struct {
	Tokens     float64 `json:"tokens"`
	LastRefill int64   `json:"last_refill_ms"`
}

// Allow spends one token from the bucket for (scope, id) and reports the
// decision. The bucket entry carries a TTL of one window, so idle keys cost
// nothing.
func (l *Limiter) Allow(ctx context.Context, scope, id string) (Decision, error) {
	capacity, ok := l.cfg.Capacity[scope]
	if !ok {
		return Decision{}, fmt.Errorf("ratelimit: unknown scope %q", scope)
	}

	now := l.now()
	key := keyPrefix + scope + ":" + id

	b := bucket{Tokens: float64(capacity), LastRefill: now.UnixMilli()}
	err := cache.GetJSON(ctx, l.store, key, &b)
	if err != nil && err != cache.ErrNotFound {
		return Decision{}, err
	}
	if err == nil {
		b.Tokens = l.refill(b, capacity, now)
		b.LastRefill = now.UnixMilli()
	}

	d := Decision{Limit: capacity}
	if b.Tokens >= 1 {
		b.Tokens--
		d.Allowed = true
	} else {
		d.RetryAfter = l.timeToToken(b.Tokens, capacity)
	}
	d.Remaining = int(b.Tokens)
	d.Reset = now.Add(l.timeToFull(b.Tokens, capacity))

	if err := cache.SetJSON(ctx, l.store, key, &b, l.cfg.Window); err != nil {
		return Decision{}, err
	}
	return d, nil
}

// refill returns the token count after accruing elapsed time at the bucket's
// rate, capped at capacity. A clock that moved backwards accrues nothing.
func (l *Limiter) refill(b bucket, capacity int, now time.Time) float64 {
	elapsed := time.Duration(now.UnixMilli()-b.LastRefill) * time.Millisecond
	if elapsed <= 0 {
		return b.Tokens
	}
	refilled := b.Tokens + elapsed.Seconds()*float64(capacity)/l.cfg.Window.Seconds()
	if refilled > float64(capacity) {
		return float64(capacity)
	}
	return refilled
}

// timeToToken is how long until the bucket holds one whole token.
func (l *Limiter) timeToToken(tokens float64, capacity int) time.Duration {
	missing := 1 - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(l.cfg.Window) / float64(capacity))
}

// timeToFull is how long until the bucket is back at capacity.
func (l *Limiter) timeToFull(tokens float64, capacity int) time.Duration {
	missing := float64(capacity) - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing * float64(l.cfg.Window) / float64(capacity))
}

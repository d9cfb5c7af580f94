// SPDX-FileCopyrightText: Copyright 2026 The BlueBridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the shared key-value store backing all gateway
// state: ID mappings, OAuth applications, codes and tokens, upstream
// sessions, and rate-limit buckets.
//
// Two implementations exist: a Redis-backed store for deployments where
// several gateway instances share state, and an in-memory store for
// single-instance use and tests. Both honour per-key TTLs; a zero TTL means
// the entry never expires.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: key not found")

// Store is the required cache interface. All gateway state flows through it.
type Store interface {
	// Set stores value under key. A zero ttl stores without expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// SetNX stores value under key only if the key is absent and reports
	// whether the write happened. Used for best-effort claim semantics.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl)
}

// GetJSON loads the value under key and unmarshals it into dest.
// Returns ErrNotFound when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, dest any) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return nil
}

// Copyright (C) 2026 Netflexity
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mqauth implements the token cache (C1): a single-slot,
// atomic-replace credential box shared by every outbound call to the
// upstream API.
package mqauth

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/netflexity/mq-exporter/pkg/mqerrors"
	"github.com/netflexity/mq-exporter/pkg/mqtypes"
)

// Authenticator performs the actual network call to obtain a fresh
// Credential. Implemented by pkg/mqclient; kept as an interface here so
// the cache has no HTTP dependency and is trivially testable.
type Authenticator interface {
	Authenticate(ctx context.Context) (mqtypes.Credential, error)
}

// Cache is the single-slot token cache described in DATA MODEL's
// Credential lifecycle and COMPONENT DESIGN §4.1. The common path (a
// valid cached credential) never touches the singleflight group or a
// mutex — only a concurrent cache miss does.
type Cache struct {
	auth Authenticator
	now  func() time.Time

	group singleflight.Group

	slot atomic.Pointer[mqtypes.Credential]
}

// New creates a Cache backed by auth.
func New(auth Authenticator) *Cache {
	return &Cache{
		auth: auth,
		now:  time.Now,
	}
}

func (c *Cache) load() *mqtypes.Credential {
	return c.slot.Load()
}

func (c *Cache) store(cred *mqtypes.Credential) {
	c.slot.Store(cred)
}

// Get returns a valid Credential, refreshing it if necessary. Concurrent
// callers during a refresh share the single in-flight authenticate call
// (singleflight), satisfying the §8 "single-flight + memoization"
// testable property.
func (c *Cache) Get(ctx context.Context) (mqtypes.Credential, error) {
	if cred := c.load(); cred != nil && cred.IsValid(c.now()) {
		return *cred, nil
	}

	v, err, _ := c.group.Do("refresh", func() (any, error) {
		// Re-check: another goroutine may have refreshed while we were
		// waiting to enter the group.
		if cred := c.load(); cred != nil && cred.IsValid(c.now()) {
			return *cred, nil
		}
		fresh, err := c.auth.Authenticate(ctx)
		if err != nil {
			if errors.Is(err, mqerrors.ErrAuthFailed) {
				c.Invalidate()
			}
			return mqtypes.Credential{}, err
		}
		c.store(&fresh)
		return fresh, nil
	})
	if err != nil {
		return mqtypes.Credential{}, err
	}
	return v.(mqtypes.Credential), nil
}

// Invalidate clears the cached credential, forcing the next Get to
// refresh. Called after a non-retryable authentication failure, per
// the Credential lifecycle invariant in §3.
func (c *Cache) Invalidate() {
	c.store(nil)
}

/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics pkg/metrics/cache.go
package metrics

import (
	"sync"
	"time"

	"github.com/carverauto/clusterwatch/pkg/models"
)

// DefaultTTL is how long a stitched series stays servable after its fetch.
const DefaultTTL = 15 * time.Second

type cacheEntry struct {
	rows      []models.StitchedRow
	fetchedAt time.Time
}

// SeriesCache memoizes stitched series per SeriesKey. It is storage only:
// callers decide when to fetch.
type SeriesCache struct {
	mu      sync.RWMutex
	entries map[models.SeriesKey]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// CacheOption configures a SeriesCache.
type CacheOption func(*SeriesCache)

// WithClock replaces the wall clock used to age entries.
func WithClock(now func() time.Time) CacheOption {
	return func(c *SeriesCache) {
		c.now = now
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *SeriesCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// NewSeriesCache creates an empty cache.
func NewSeriesCache(opts ...CacheOption) *SeriesCache {
	c := &SeriesCache{
		entries: make(map[models.SeriesKey]cacheEntry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Get returns a copy of the rows stored under key if they are no older than
// the TTL. Expired entries are a miss.
func (c *SeriesCache) Get(key models.SeriesKey) ([]models.StitchedRow, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.expired(e) {
		return nil, false
	}

	return models.CloneRows(e.rows), true
}

// Put replaces whatever is stored under key.
func (c *SeriesCache) Put(key models.SeriesKey, rows []models.StitchedRow, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{
		rows:      models.CloneRows(rows),
		fetchedAt: fetchedAt,
	}
}

// InvalidateAll drops every entry. Called when the query range changes.
func (c *SeriesCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[models.SeriesKey]cacheEntry)
}

// Prune removes expired entries and returns how many were dropped.
func (c *SeriesCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0

	for key, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, key)
			removed++
		}
	}

	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *SeriesCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// TTL returns the configured time-to-live.
func (c *SeriesCache) TTL() time.Duration {
	return c.ttl
}

func (c *SeriesCache) expired(e cacheEntry) bool {
	return c.now().Sub(e.fetchedAt) > c.ttl
}

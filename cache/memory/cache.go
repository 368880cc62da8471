// Copyright (c) 2021 - The Event Horizon authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides an in-process cache with expiring entries.
package memory

import (
	"context"
	"sync"
	"time"
)

// Cache is a thread-safe in-memory mediator.Cache. Expired entries are
// removed lazily on access or by Purge.
type Cache struct {
	entries map[string]entry
	mu      sync.RWMutex
	now     func() time.Time
}

type entry struct {
	value   interface{}
	expires time.Time
}

// NewCache creates a new empty Cache.
func NewCache() *Cache {
	return &Cache{
		entries: map[string]entry{},
		now:     time.Now,
	}
}

// Get implements the Get method of the mediator.Cache interface.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false, nil
	}

	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		c.mu.Lock()
		if e, ok := c.entries[key]; ok && !c.now().Before(e.expires) {
			delete(c.entries, key)
		}
		c.mu.Unlock()

		return nil, false, nil
	}

	return e.value, true, nil
}

// Set implements the Set method of the mediator.Cache interface. A zero TTL
// never expires.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{value: value}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}

	c.entries[key] = e

	return nil
}

// Delete removes an entry.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)

	return nil
}

// Purge removes all expired entries.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for k, e := range c.entries {
		if !e.expires.IsZero() && !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of entries, including expired ones not yet removed.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

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

// Package caching provides a behavior that caches the responses of
// cacheable queries.
package caching

import (
	"context"
	"time"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

// DefaultTTL is used for queries that do not declare a TTL.
const DefaultTTL = 5 * time.Minute

// Behavior returns cached responses for requests implementing
// mediator.Cacheable, keyed by their declared cache key. Other requests pass
// through untouched.
type Behavior struct {
	cache      med.Cache
	keyPrefix  string
	defaultTTL time.Duration
	logger     *zap.Logger
}

// Option is an option setter used to configure creation.
type Option func(*Behavior)

// WithKeyPrefix prefixes all cache keys.
func WithKeyPrefix(prefix string) Option {
	return func(b *Behavior) {
		b.keyPrefix = prefix
	}
}

// WithDefaultTTL sets the TTL of queries without one, 5 minutes by default.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(b *Behavior) {
		if ttl > 0 {
			b.defaultTTL = ttl
		}
	}
}

// WithLogger sets the logger of cache failures.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Behavior) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBehavior creates a new caching Behavior using the cache.
func NewBehavior(cache med.Cache, options ...Option) *Behavior {
	b := &Behavior{
		cache:      cache,
		defaultTTL: DefaultTTL,
		logger:     zap.NewNop(),
	}

	for _, option := range options {
		option(b)
	}

	return b
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorCaching
}

// Handle implements the Handle method of the mediator.Behavior interface.
// Cache failures are logged and handled as misses.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	q, ok := req.(med.Cacheable)
	if !ok || b.cache == nil || q.CacheKey() == "" {
		return next(ctx)
	}

	key := b.keyPrefix + q.CacheKey()
	logger := b.logger.With(
		zap.Stringer("request_type", req.RequestType()),
		zap.String("cache_key", key),
	)

	v, hit, err := b.cache.Get(ctx, key)
	if err != nil {
		logger.Warn("could not read cache", zap.Error(err))
	} else if hit {
		logger.Debug("cache hit")

		return v, nil
	}

	resp, err := next(ctx)
	if err != nil {
		return resp, err
	}

	ttl := q.CacheTTL()
	if ttl <= 0 {
		ttl = b.defaultTTL
	}

	if err := b.cache.Set(ctx, key, resp, ttl); err != nil {
		logger.Warn("could not write cache", zap.Error(err))
	}

	return resp, nil
}

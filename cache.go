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

package mediator

import (
	"context"
	"time"
)

// Cacheable is implemented by queries whose responses may be cached.
type Cacheable interface {
	Request

	// CacheKey returns the key of the cached response.
	CacheKey() string
	// CacheTTL returns how long the response is cached, zero for the default.
	CacheTTL() time.Duration
}

// Cache stores responses of cacheable queries. Implementations must be safe
// for concurrent use.
type Cache interface {
	// Get returns the cached value and true, or false on a miss.
	Get(ctx context.Context, key string) (interface{}, bool, error)
	// Set stores a value for the duration of the TTL.
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

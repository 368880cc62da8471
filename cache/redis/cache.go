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

// Package redis provides a mediator.Cache stored in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrUnknownValueType is when caching or reading a value of a type that was
// not registered with WithValueTypes.
var ErrUnknownValueType = errors.New("unknown cache value type")

// Cache is a mediator.Cache storing JSON encoded values in Redis. Since
// responses are decoded into their concrete types, every cached type must be
// registered.
type Cache struct {
	client     *redis.Client
	clientOpts *redis.Options
	types      map[string]reflect.Type
	typesMu    sync.RWMutex
}

// Option is an option setter used to configure creation.
type Option func(*Cache) error

// WithRedisOptions uses the Redis options for the underlying client, instead of the defaults.
func WithRedisOptions(opts *redis.Options) Option {
	return func(c *Cache) error {
		c.clientOpts = opts

		return nil
	}
}

// WithValueTypes registers the types of the sample values as cacheable.
func WithValueTypes(samples ...interface{}) Option {
	return func(c *Cache) error {
		for _, s := range samples {
			if s == nil {
				return errors.New("nil value type")
			}

			c.RegisterValueType(s)
		}

		return nil
	}
}

// NewCache creates a new Cache connected to a Redis server.
func NewCache(addr string, options ...Option) (*Cache, error) {
	c := &Cache{
		types: map[string]reflect.Type{},
	}

	c.RegisterValueType("", 0, 0.0, false)

	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(c); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if c.clientOpts == nil {
		c.clientOpts = &redis.Options{
			Addr: addr,
		}
	}

	c.client = redis.NewClient(c.clientOpts)
	if res, err := c.client.Ping(context.Background()).Result(); err != nil || res != "PONG" {
		return nil, fmt.Errorf("could not check Redis server: %w", err)
	}

	return c, nil
}

// RegisterValueType registers the types of the sample values as cacheable.
func (c *Cache) RegisterValueType(samples ...interface{}) {
	c.typesMu.Lock()
	defer c.typesMu.Unlock()

	for _, s := range samples {
		t := reflect.TypeOf(s)
		c.types[t.String()] = t
	}
}

type envelope struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Get implements the Get method of the mediator.Cache interface.
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("could not get cache entry: %w", err)
	}

	var e envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, false, fmt.Errorf("could not unmarshal cache entry: %w", err)
	}

	c.typesMu.RLock()
	t, ok := c.types[e.Type]
	c.typesMu.RUnlock()

	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownValueType, e.Type)
	}

	v := reflect.New(t)
	if err := json.Unmarshal(e.Value, v.Interface()); err != nil {
		return nil, false, fmt.Errorf("could not unmarshal cache value: %w", err)
	}

	return v.Elem().Interface(), true, nil
}

// Set implements the Set method of the mediator.Cache interface.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if value == nil {
		return fmt.Errorf("%w: nil", ErrUnknownValueType)
	}

	typeName := reflect.TypeOf(value).String()

	c.typesMu.RLock()
	_, ok := c.types[typeName]
	c.typesMu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownValueType, typeName)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal cache value: %w", err)
	}

	b, err := json.Marshal(envelope{Type: typeName, Value: raw})
	if err != nil {
		return fmt.Errorf("could not marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("could not set cache entry: %w", err)
	}

	return nil
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

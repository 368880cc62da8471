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

// Package redis provides an integration publisher on Redis Streams.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jpillora/backoff"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
)

// Stream entry fields set on every published event.
const (
	EventTypeKey = "event_type"
	EventIDKey   = "event_id"
	DataKey      = "data"
)

// Publisher is a mediator.IntegrationPublisher appending encoded events to a
// Redis stream.
type Publisher struct {
	appID       string
	streamName  string
	maxLen      int64
	maxAttempts int
	client      *redis.Client
	clientOpts  *redis.Options
	codec       med.IntegrationEventCodec
}

// NewPublisher creates a Publisher connected to a Redis server. The server
// is pinged with backoff until it answers or the attempts run out.
func NewPublisher(addr, appID string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		appID:       appID,
		streamName:  appID + "_integration_events",
		maxAttempts: 5,
		codec:       &json.EventCodec{},
	}

	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if p.clientOpts == nil {
		p.clientOpts = &redis.Options{
			Addr: addr,
		}
	}

	p.client = redis.NewClient(p.clientOpts)

	if err := p.ping(context.Background()); err != nil {
		p.client.Close()

		return nil, err
	}

	return p, nil
}

// Option is an option setter used to configure creation.
type Option func(*Publisher) error

// WithCodec uses the specified codec for encoding events.
func WithCodec(codec med.IntegrationEventCodec) Option {
	return func(p *Publisher) error {
		if codec == nil {
			return errors.New("missing codec")
		}

		p.codec = codec

		return nil
	}
}

// WithRedisOptions uses the Redis options for the underlying client, instead of the defaults.
func WithRedisOptions(opts *redis.Options) Option {
	return func(p *Publisher) error {
		p.clientOpts = opts

		return nil
	}
}

// WithMaxLen caps the stream at approximately n entries.
func WithMaxLen(n int64) Option {
	return func(p *Publisher) error {
		if n < 0 {
			return fmt.Errorf("invalid max length: %d", n)
		}

		p.maxLen = n

		return nil
	}
}

// WithMaxAttempts sets how many times the server is pinged on creation.
func WithMaxAttempts(n int) Option {
	return func(p *Publisher) error {
		if n < 1 {
			return fmt.Errorf("invalid max attempts: %d", n)
		}

		p.maxAttempts = n

		return nil
	}
}

// StreamName returns the name of the stream events are appended to.
func (p *Publisher) StreamName() string {
	return p.streamName
}

// Client returns the underlying client.
func (p *Publisher) Client() *redis.Client {
	return p.client
}

func (p *Publisher) ping(ctx context.Context) error {
	bo := &backoff.Backoff{
		Min:    100 * time.Millisecond,
		Max:    2 * time.Second,
		Factor: 2,
	}

	var err error

	for i := 0; i < p.maxAttempts; i++ {
		var res string
		if res, err = p.client.Ping(ctx).Result(); err == nil && res == "PONG" {
			return nil
		} else if err == nil {
			err = errors.New("unexpected reply: " + res)
		}

		if i < p.maxAttempts-1 {
			time.Sleep(bo.Duration())
		}
	}

	return fmt.Errorf("could not check Redis server: %w", err)
}

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// mediator.IntegrationPublisher interface.
func (p *Publisher) PublishIntegrationEvent(ctx context.Context, event med.IntegrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := p.codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.streamName,
		Values: map[string]interface{}{
			EventTypeKey: event.NotificationType().String(),
			EventIDKey:   event.EventID().String(),
			DataKey:      data,
		},
	}

	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close closes the client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

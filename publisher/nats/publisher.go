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

// Package nats provides an integration publisher on NATS.
package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
)

// Publisher is a mediator.IntegrationPublisher publishing encoded events on a
// NATS subject.
type Publisher struct {
	appID    string
	subject  string
	conn     *nats.Conn
	connOpts []nats.Option
	codec    med.IntegrationEventCodec
}

// NewPublisher creates a Publisher connected to a NATS server.
func NewPublisher(url, appID string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		appID:   appID,
		subject: appID + "_integration_events",
		codec:   &json.EventCodec{},
	}

	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	var err error
	if p.conn, err = nats.Connect(url, p.connOpts...); err != nil {
		return nil, fmt.Errorf("could not connect to NATS: %w", err)
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

// WithNATSOptions adds the NATS options to the underlying client.
func WithNATSOptions(opts ...nats.Option) Option {
	return func(p *Publisher) error {
		p.connOpts = opts

		return nil
	}
}

// Subject returns the subject events are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

// Conn returns the underlying connection.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// mediator.IntegrationPublisher interface. The event is flushed to the server
// before returning.
func (p *Publisher) PublishIntegrationEvent(ctx context.Context, event med.IntegrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := p.codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	if err := p.conn.Publish(p.subject, data); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	if err := p.conn.FlushWithContext(ctx); err != nil {
		return fmt.Errorf("could not flush event: %w", err)
	}

	return nil
}

// Close drains and closes the connection.
func (p *Publisher) Close() error {
	return p.conn.Drain()
}

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

// Package gcp provides an integration publisher on Google Cloud Pub/Sub.
package gcp

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
)

// Message attributes set on every published event.
const (
	EventTypeAttribute = "event_type"
	EventIDAttribute   = "event_id"
)

// Publisher is a mediator.IntegrationPublisher publishing encoded events to a
// Pub/Sub topic. Publishing waits for the server to acknowledge the message.
type Publisher struct {
	appID       string
	topicID     string
	orderingKey string
	clientOpts  []option.ClientOption
	client      *pubsub.Client
	topic       *pubsub.Topic
	codec       med.IntegrationEventCodec
}

// NewPublisher creates a Publisher and gets or creates its topic.
func NewPublisher(projectID, appID string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		appID:   appID,
		topicID: appID + "_integration_events",
		codec:   &json.EventCodec{},
	}

	for _, o := range options {
		if o == nil {
			continue
		}

		if err := o(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	ctx := context.Background()

	client, err := pubsub.NewClient(ctx, projectID, p.clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("could not create Pub/Sub client: %w", err)
	}

	p.client = client

	// Get or create the topic.
	p.topic = client.Topic(p.topicID)
	if ok, err := p.topic.Exists(ctx); err != nil {
		client.Close()

		return nil, fmt.Errorf("could not check Pub/Sub topic: %w", err)
	} else if !ok {
		if p.topic, err = client.CreateTopic(ctx, p.topicID); err != nil {
			client.Close()

			return nil, fmt.Errorf("could not create Pub/Sub topic: %w", err)
		}
	}

	if p.orderingKey != "" {
		p.topic.EnableMessageOrdering = true
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

// WithClientOptions adds the options to the underlying client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(p *Publisher) error {
		p.clientOpts = append(p.clientOpts, opts...)

		return nil
	}
}

// WithOrderingKey publishes all events with the ordering key, keeping them
// in publish order for subscriptions with message ordering enabled.
func WithOrderingKey(key string) Option {
	return func(p *Publisher) error {
		p.orderingKey = key

		return nil
	}
}

// Topic returns the underlying topic.
func (p *Publisher) Topic() *pubsub.Topic {
	return p.topic
}

// Client returns the underlying client.
func (p *Publisher) Client() *pubsub.Client {
	return p.client
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

	res := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			EventTypeAttribute: event.NotificationType().String(),
			EventIDAttribute:   event.EventID().String(),
		},
		OrderingKey: p.orderingKey,
	})

	if _, err := res.Get(ctx); err != nil {
		// Publishing with the key is paused after a failure.
		if p.orderingKey != "" {
			p.topic.ResumePublish(p.orderingKey)
		}

		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close stops the topic and closes the client.
func (p *Publisher) Close() error {
	p.topic.Stop()

	return p.client.Close()
}

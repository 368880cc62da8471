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

// Package kafka provides an integration publisher on Kafka.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/segmentio/kafka-go"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
)

// Message headers set on every published event.
const (
	EventTypeHeader = "event_type"
	EventIDHeader   = "event_id"
)

// Publisher is a mediator.IntegrationPublisher writing encoded events to a
// Kafka topic, keyed by event ID.
type Publisher struct {
	addr        string
	appID       string
	topic       string
	maxAttempts int
	writer      *kafka.Writer
	codec       med.IntegrationEventCodec
}

// NewPublisher creates a Publisher and gets or creates its topic. The topic
// creation is retried with backoff while the broker is not yet available.
func NewPublisher(addr, appID string, options ...Option) (*Publisher, error) {
	p := &Publisher{
		addr:        addr,
		appID:       appID,
		topic:       appID + "_integration_events",
		maxAttempts: 10,
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

	if err := p.createTopic(context.Background()); err != nil {
		return nil, err
	}

	p.writer = &kafka.Writer{
		Addr:         kafka.TCP(addr),
		Topic:        p.topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    1,                // Write every event without delay.
		RequiredAcks: kafka.RequireAll, // Events may be marked as published after this.
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

// WithTopic uses a topic name instead of the one derived from the app ID.
func WithTopic(topic string) Option {
	return func(p *Publisher) error {
		if topic == "" {
			return errors.New("missing topic")
		}

		p.topic = topic

		return nil
	}
}

// WithMaxAttempts sets how many times topic creation is tried.
func WithMaxAttempts(n int) Option {
	return func(p *Publisher) error {
		if n < 1 {
			return fmt.Errorf("invalid max attempts: %d", n)
		}

		p.maxAttempts = n

		return nil
	}
}

// Topic returns the topic events are written to.
func (p *Publisher) Topic() string {
	return p.topic
}

func (p *Publisher) createTopic(ctx context.Context) error {
	client := &kafka.Client{
		Addr: kafka.TCP(p.addr),
	}

	bo := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    5 * time.Second,
		Factor: 2,
	}

	var (
		resp *kafka.CreateTopicsResponse
		err  error
	)

	for i := 0; i < p.maxAttempts; i++ {
		resp, err = client.CreateTopics(ctx, &kafka.CreateTopicsRequest{
			Topics: []kafka.TopicConfig{{
				Topic:             p.topic,
				NumPartitions:     1,
				ReplicationFactor: 1,
			}},
		})
		if errors.Is(err, kafka.BrokerNotAvailable) {
			time.Sleep(bo.Duration())

			continue
		} else if err != nil {
			return fmt.Errorf("could not create Kafka topic: %w", err)
		}

		break
	}

	if resp == nil {
		return fmt.Errorf("could not get/create Kafka topic in time: %w", err)
	}

	if topicErr, ok := resp.Errors[p.topic]; ok && topicErr != nil {
		if !errors.Is(topicErr, kafka.TopicAlreadyExists) {
			return fmt.Errorf("invalid Kafka topic: %w", topicErr)
		}
	}

	return nil
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

	id := event.EventID().String()

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(id),
		Value: data,
		Headers: []kafka.Header{
			{
				Key:   EventTypeHeader,
				Value: []byte(event.NotificationType().String()),
			},
			{
				Key:   EventIDHeader,
				Value: []byte(id),
			},
		},
	}); err != nil {
		return fmt.Errorf("could not publish event: %w", err)
	}

	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

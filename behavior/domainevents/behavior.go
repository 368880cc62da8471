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

// Package domainevents provides a behavior that dispatches the events raised
// while handling a request, without a transaction or an outbox.
package domainevents

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/collector"
)

// ErrMissingNotificationPublisher is when no publisher of domain events is provided.
var ErrMissingNotificationPublisher = errors.New("missing notification publisher")

// Behavior collects the events raised by the rest of the pipeline and
// dispatches them after it succeeds. Domain events are published in-process
// and integration events with the publisher, if any. The events of a failed
// request are dropped.
type Behavior struct {
	notifier     med.NotificationPublisher
	publisher    med.IntegrationPublisher
	newCollector func() med.EventCollector
	logger       *zap.Logger
}

// Option is an option setter used to configure creation.
type Option func(*Behavior) error

// WithPublisher sets the publisher of integration events.
func WithPublisher(p med.IntegrationPublisher) Option {
	return func(b *Behavior) error {
		b.publisher = p

		return nil
	}
}

// WithCollectorFactory sets the factory of the per invocation event collector.
func WithCollectorFactory(f func() med.EventCollector) Option {
	return func(b *Behavior) error {
		if f == nil {
			return errors.New("missing collector factory")
		}

		b.newCollector = f

		return nil
	}
}

// WithLogger sets the logger of the behavior.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Behavior) error {
		if logger == nil {
			return errors.New("missing logger")
		}

		b.logger = logger

		return nil
	}
}

// NewBehavior creates a new Behavior publishing domain events with the notifier.
func NewBehavior(notifier med.NotificationPublisher, options ...Option) (*Behavior, error) {
	if notifier == nil {
		return nil, ErrMissingNotificationPublisher
	}

	b := &Behavior{
		notifier:     notifier,
		newCollector: collector.Factory,
		logger:       zap.NewNop(),
	}

	for _, option := range options {
		if err := option(b); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return b, nil
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorDomainEvents
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	c := b.newCollector()
	ctx = med.NewContextWithCollector(ctx, c)

	resp, err := next(ctx)
	if err != nil {
		d, i := c.Drain()
		b.warnDropped(req, len(d), len(i))

		return nil, err
	}

	domainEvents, integrationEvents := c.Drain()

	if len(integrationEvents) > 0 && b.publisher == nil {
		b.warnDropped(req, len(domainEvents), len(integrationEvents))

		return nil, med.ErrNoIntegrationTarget
	}

	// Events raised by domain event handlers are not dispatched.
	defer c.Discard()

	for n, e := range domainEvents {
		if err := b.notifier.Publish(ctx, e); err != nil {
			b.warnDropped(req, len(domainEvents)-n-1, len(integrationEvents))

			return nil, err
		}
	}

	for n, e := range integrationEvents {
		if err := b.publisher.PublishIntegrationEvent(ctx, e); err != nil {
			b.warnDropped(req, 0, len(integrationEvents)-n-1)

			return nil, &med.PublishError{Err: err, Event: e}
		}
	}

	return resp, nil
}

func (b *Behavior) warnDropped(req med.Request, domainEvents, integrationEvents int) {
	if domainEvents+integrationEvents == 0 {
		return
	}

	b.logger.Warn("dropped events of failed request",
		zap.Stringer("request_type", req.RequestType()),
		zap.Int("domain_events", domainEvents),
		zap.Int("integration_events", integrationEvents),
	)
}

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

// Package transactional provides a behavior that runs the rest of the
// pipeline in a transaction and dispatches the events raised while doing so.
//
// An invocation goes through the following steps:
// 1. A transaction is begun and a fresh event collector is put in the context
// 2. The rest of the pipeline runs, events are collected but not dispatched
// 3. The collector is drained once
// 4. Domain events are published in-process, integration events are published
//    with the publisher and saved to the outbox when that fails
// 5. The transaction is committed
//
// A failure in any step rolls back the transaction, discards the remaining
// events and returns the original error.
package transactional

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/collector"
	"github.com/looplab/mediator/metrics"
)

var (
	// ErrMissingTransactionManager is when no transaction manager is provided.
	ErrMissingTransactionManager = errors.New("missing transaction manager")
	// ErrMissingNotificationPublisher is when no publisher of domain events is provided.
	ErrMissingNotificationPublisher = errors.New("missing notification publisher")
)

// DispatchOrder is the order of domain and integration event dispatch.
type DispatchOrder int

const (
	// DomainFirst dispatches domain events before integration events.
	DomainFirst DispatchOrder = iota
	// IntegrationFirst dispatches integration events before domain events.
	IntegrationFirst
)

// String returns the string representation of a dispatch order.
func (o DispatchOrder) String() string {
	switch o {
	case DomainFirst:
		return "domain_first"
	case IntegrationFirst:
		return "integration_first"
	default:
		return fmt.Sprintf("DispatchOrder(%d)", int(o))
	}
}

// Behavior is the transactional event dispatcher.
type Behavior struct {
	txm          med.TransactionManager
	notifier     med.NotificationPublisher
	publisher    med.IntegrationPublisher
	outbox       med.OutboxStore
	order        DispatchOrder
	parallel     bool
	newCollector func() med.EventCollector
	logger       *zap.Logger
	metrics      *metrics.Metrics
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

// WithOutboxStore sets the outbox where integration events are saved when
// they can not be published, or always if there is no publisher.
func WithOutboxStore(s med.OutboxStore) Option {
	return func(b *Behavior) error {
		b.outbox = s

		return nil
	}
}

// WithDispatchOrder sets the order of domain and integration event dispatch,
// DomainFirst by default.
func WithDispatchOrder(order DispatchOrder) Option {
	return func(b *Behavior) error {
		if order != DomainFirst && order != IntegrationFirst {
			return fmt.Errorf("invalid dispatch order: %s", order)
		}

		b.order = order

		return nil
	}
}

// WithParallelDispatch dispatches domain and integration events concurrently.
// The dispatch fails if either group fails.
func WithParallelDispatch() Option {
	return func(b *Behavior) error {
		b.parallel = true

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

// WithMetrics counts integration events saved to the outbox.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Behavior) error {
		b.metrics = m

		return nil
	}
}

// NewBehavior creates a new transactional Behavior. Domain events are
// published with the notifier, usually the dispatcher the behavior is
// registered in.
func NewBehavior(txm med.TransactionManager, notifier med.NotificationPublisher, options ...Option) (*Behavior, error) {
	if txm == nil {
		return nil, ErrMissingTransactionManager
	}

	if notifier == nil {
		return nil, ErrMissingNotificationPublisher
	}

	b := &Behavior{
		txm:          txm,
		notifier:     notifier,
		order:        DomainFirst,
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
	return med.BehaviorTransactional
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ctx, tx, err := b.txm.Begin(ctx)
	if err != nil {
		return nil, &med.TransactionError{Op: med.TransactionOpBegin, Err: err}
	}

	c := b.newCollector()
	ctx = med.NewContextWithCollector(ctx, c)

	committed := false

	defer func() {
		if !committed {
			b.rollback(ctx, req, tx)
			c.Discard()

			return
		}

		// Events raised by domain event handlers are not dispatched.
		if d, i := c.Drain(); len(d)+len(i) > 0 {
			b.logger.Warn("dropped events raised during event dispatch",
				zap.Stringer("request_type", req.RequestType()),
				zap.Int("domain_events", len(d)),
				zap.Int("integration_events", len(i)),
			)
		}
	}()

	resp, err := next(ctx)
	if err != nil {
		return nil, err
	}

	domainEvents, integrationEvents := c.Drain()

	if err := b.dispatch(ctx, domainEvents, integrationEvents); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, &med.TransactionError{Op: med.TransactionOpCommit, Err: err}
	}

	committed = true

	return resp, nil
}

// rollback rolls back without failing, the original error is what counts.
func (b *Behavior) rollback(ctx context.Context, req med.Request, tx med.Transaction) {
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		b.logger.Error("could not roll back transaction",
			zap.Stringer("request_type", req.RequestType()),
			zap.Error(&med.TransactionError{Op: med.TransactionOpRollback, Err: err}),
		)
	}
}

func (b *Behavior) dispatch(ctx context.Context, domainEvents []med.DomainEvent, integrationEvents []med.IntegrationEvent) error {
	if len(integrationEvents) > 0 && b.publisher == nil && b.outbox == nil {
		return med.ErrNoIntegrationTarget
	}

	domain := func(ctx context.Context) error {
		return b.dispatchDomain(ctx, domainEvents)
	}
	integration := func(ctx context.Context) error {
		return b.dispatchIntegration(ctx, integrationEvents)
	}

	first, second := domain, integration
	if b.order == IntegrationFirst {
		first, second = integration, domain
	}

	if b.parallel {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return first(gctx) })
		g.Go(func() error { return second(gctx) })

		return g.Wait()
	}

	if err := first(ctx); err != nil {
		return err
	}

	return second(ctx)
}

func (b *Behavior) dispatchDomain(ctx context.Context, events []med.DomainEvent) error {
	for _, e := range events {
		if err := b.notifier.Publish(ctx, e); err != nil {
			return err
		}
	}

	return nil
}

func (b *Behavior) dispatchIntegration(ctx context.Context, events []med.IntegrationEvent) error {
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		if b.publisher != nil {
			err := b.publisher.PublishIntegrationEvent(ctx, e)
			if err == nil {
				continue
			}

			if b.outbox == nil {
				return &med.PublishError{Err: err, Event: e}
			}

			b.logger.Warn("could not publish integration event, saving to outbox",
				zap.Stringer("notification_type", e.NotificationType()),
				zap.Stringer("event_id", e.EventID()),
				zap.Error(err),
			)
		}

		if err := b.outbox.Save(ctx, e); err != nil {
			return &med.OutboxError{
				Err:   fmt.Errorf("could not save event: %w", err),
				Ctx:   ctx,
				Event: e,
			}
		}

		if b.metrics != nil {
			b.metrics.OutboxEvent(metrics.OutboxSaved)
		}
	}

	return nil
}

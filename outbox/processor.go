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

// Package outbox delivers integration events saved to a mediator.OutboxStore.
//
// A Processor periodically fetches the pending events of a store and publishes
// them one by one. Published events are marked as such, failed ones stay
// pending for the next cycle. There is no backoff within a cycle, the interval
// between cycles is the backoff.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/metrics"
)

// DefaultInterval is the default interval between processing cycles.
const DefaultInterval = 10 * time.Second

var (
	// ErrMissingStore is when no outbox store is provided.
	ErrMissingStore = errors.New("missing outbox store")
	// ErrMissingPublisher is when no integration publisher is provided.
	ErrMissingPublisher = errors.New("missing integration publisher")
)

// Processor publishes the pending events of an outbox store.
type Processor struct {
	store     med.OutboxStore
	publisher med.IntegrationPublisher
	interval  time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics

	errCh        chan error
	processingMu sync.Mutex
	cctx         context.Context
	cancel       context.CancelFunc
	wg           sync.WaitGroup
}

// Option is an option setter used to configure creation.
type Option func(*Processor) error

// WithInterval sets the interval between processing cycles, 10 seconds by
// default.
func WithInterval(interval time.Duration) Option {
	return func(p *Processor) error {
		if interval <= 0 {
			return fmt.Errorf("invalid interval: %s", interval)
		}

		p.interval = interval

		return nil
	}
}

// WithLogger sets the logger of the processor.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Processor) error {
		if logger == nil {
			return errors.New("missing logger")
		}

		p.logger = logger

		return nil
	}
}

// WithMetrics counts published and failed events.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) error {
		p.metrics = m

		return nil
	}
}

// NewProcessor creates a new Processor publishing the pending events of the
// store with the publisher.
func NewProcessor(store med.OutboxStore, publisher med.IntegrationPublisher, options ...Option) (*Processor, error) {
	if store == nil {
		return nil, ErrMissingStore
	}

	if publisher == nil {
		return nil, ErrMissingPublisher
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Processor{
		store:     store,
		publisher: publisher,
		interval:  DefaultInterval,
		logger:    zap.NewNop(),
		errCh:     make(chan error, 100),
		cctx:      ctx,
		cancel:    cancel,
	}

	for _, option := range options {
		if err := option(p); err != nil {
			cancel()

			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return p, nil
}

// ProcessOnce publishes all pending events once. Errors of single events,
// including entries the store could not read, are reported on the error
// channel and do not stop the cycle. An error is only returned when the
// pending events could not be fetched or the context is done.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	p.processingMu.Lock()
	defer p.processingMu.Unlock()

	pending, err := p.pending(ctx)
	if err != nil {
		var outboxErr *med.OutboxError
		if !errors.As(err, &outboxErr) {
			return fmt.Errorf("could not get pending events: %w", err)
		}

		// Unreadable entries are skipped, the rest is still delivered.
		p.reportAll(err)
	}

	for _, pe := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		e := pe.Event

		publishCtx := pe.Ctx
		if publishCtx == nil {
			publishCtx = ctx
		}

		if err := p.publisher.PublishIntegrationEvent(publishCtx, e); err != nil {
			p.count(metrics.OutboxFailed)
			p.report(&med.OutboxError{
				Err:   &med.PublishError{Err: err, Event: e},
				Ctx:   publishCtx,
				Event: e,
			})

			continue
		}

		// The event is out, marking it must not be aborted by a cancel.
		if err := p.store.MarkPublished(context.WithoutCancel(ctx), e.EventID()); err != nil {
			p.report(&med.OutboxError{
				Err:   fmt.Errorf("could not mark event as published: %w", err),
				Ctx:   publishCtx,
				Event: e,
			})

			continue
		}

		p.count(metrics.OutboxPublished)
		p.logger.Debug("published outbox event",
			zap.Stringer("notification_type", e.NotificationType()),
			zap.Stringer("event_id", e.EventID()),
		)
	}

	return nil
}

// pending fetches the pending events, with their saved contexts when the
// store keeps them.
func (p *Processor) pending(ctx context.Context) ([]med.PendingEvent, error) {
	if s, ok := p.store.(med.PendingContextStore); ok {
		return s.GetPendingWithContext(ctx)
	}

	events, err := p.store.GetPending(ctx)

	pending := make([]med.PendingEvent, 0, len(events))
	for _, e := range events {
		pending = append(pending, med.PendingEvent{Event: e, Ctx: ctx})
	}

	return pending, err
}

// reportAll reports every *OutboxError joined in err.
func (p *Processor) reportAll(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, err := range joined.Unwrap() {
			p.reportAll(err)
		}

		return
	}

	var outboxErr *med.OutboxError
	if errors.As(err, &outboxErr) {
		p.count(metrics.OutboxFailed)
		p.report(outboxErr)
	}
}

// Start starts processing in the background, until Close is called.
func (p *Processor) Start() {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		p.runPeriodicallyUntilCancelled(p.cctx)
	}()
}

// Run processes in the foreground until the context is cancelled or Close is
// called.
func (p *Processor) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-p.cctx.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	p.runPeriodicallyUntilCancelled(ctx)
}

// Close stops background processing, cancelling any cycle in progress, and
// waits for it to return.
func (p *Processor) Close() error {
	p.cancel()
	p.wg.Wait()

	return nil
}

// Errors returns an error channel where async processing errors are sent.
func (p *Processor) Errors() <-chan error {
	return p.errCh
}

func (p *Processor) runPeriodicallyUntilCancelled(ctx context.Context) {
	for {
		if err := p.ProcessOnce(ctx); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}

			p.report(&med.OutboxError{Err: err, Ctx: ctx})
		}

		// Wait until next run or cancelled.
		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return
		}
	}
}

func (p *Processor) report(err *med.OutboxError) {
	select {
	case p.errCh <- err:
	default:
		p.logger.Error("missed error in outbox processing", zap.Error(err))
	}
}

func (p *Processor) count(outcome string) {
	if p.metrics != nil {
		p.metrics.OutboxEvent(outcome)
	}
}

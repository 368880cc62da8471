// Copyright (c) 2014 - The Event Horizon authors.
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

// Package local provides an in-memory integration publisher that loops
// published events back to handlers in the same process.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
)

// DefaultQueueSize is the default size of the inbound queue.
var DefaultQueueSize = 100

var (
	// ErrClosed is when publishing to a closed publisher.
	ErrClosed = errors.New("publisher is closed")
	// ErrQueueFull is when the inbound queue has no room for the event.
	ErrQueueFull = errors.New("inbound queue is full")
)

// HandlerError is an error when an inbound integration event was handled.
type HandlerError struct {
	// Err is the error.
	Err error
	// Ctx is the context used when the error happened.
	Ctx context.Context
	// Event is the event handled when the error happened.
	Event med.IntegrationEvent
}

// Error implements the Error method of the errors.Error interface.
func (e *HandlerError) Error() string {
	str := "local publisher: "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.Event != nil {
		str += fmt.Sprintf(" [%s(%s)]", e.Event.NotificationType(), e.Event.EventID())
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Publisher is a mediator.IntegrationPublisher that encodes published events
// onto an inbound queue. The queue is drained in the background and every
// event is decoded again and handed to the handlers of its type, in order of
// registration. Handlers never share the publisher's event instance.
type Publisher struct {
	codec      med.IntegrationEventCodec
	queueSize  int
	queue      chan []byte
	handlers   map[med.NotificationType][]med.NotificationHandler
	handlersMu sync.RWMutex
	closed     bool
	closedMu   sync.RWMutex
	errCh      chan error
	logger     *zap.Logger
	wg         sync.WaitGroup
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

// WithQueueSize sets the size of the inbound queue.
func WithQueueSize(size int) Option {
	return func(p *Publisher) error {
		if size <= 0 {
			return fmt.Errorf("invalid queue size: %d", size)
		}

		p.queueSize = size

		return nil
	}
}

// WithLogger uses the logger for errors that can not be reported on the
// error channel.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Publisher) error {
		if logger == nil {
			return errors.New("missing logger")
		}

		p.logger = logger

		return nil
	}
}

// NewPublisher creates a Publisher and starts draining its queue.
func NewPublisher(options ...Option) (*Publisher, error) {
	p := &Publisher{
		codec:     &json.EventCodec{},
		queueSize: DefaultQueueSize,
		handlers:  map[med.NotificationType][]med.NotificationHandler{},
		errCh:     make(chan error, 100),
		logger:    zap.NewNop(),
	}

	for _, option := range options {
		if option == nil {
			continue
		}

		if err := option(p); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	p.queue = make(chan []byte, p.queueSize)

	p.wg.Add(1)

	go p.handle()

	return p, nil
}

// AddHandler adds a handler for inbound events of a type.
func (p *Publisher) AddHandler(t med.NotificationType, h med.NotificationHandler) error {
	if h == nil {
		return med.ErrMissingHandler
	}

	p.handlersMu.Lock()
	defer p.handlersMu.Unlock()

	p.handlers[t] = append(p.handlers[t], h)

	return nil
}

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// mediator.IntegrationPublisher interface. It fails with ErrQueueFull instead
// of blocking when the queue is full.
func (p *Publisher) PublishIntegrationEvent(ctx context.Context, event med.IntegrationEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := p.codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	p.closedMu.RLock()
	defer p.closedMu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- data:
		return nil
	default:
		return ErrQueueFull
	}
}

// Errors returns an error channel where handler errors are sent.
func (p *Publisher) Errors() <-chan error {
	return p.errCh
}

// Close stops accepting events and waits until the queued ones are handled.
func (p *Publisher) Close() error {
	p.closedMu.Lock()
	if p.closed {
		p.closedMu.Unlock()

		return nil
	}

	p.closed = true
	close(p.queue)
	p.closedMu.Unlock()

	p.wg.Wait()

	return nil
}

func (p *Publisher) handle() {
	defer p.wg.Done()

	for data := range p.queue {
		event, ctx, err := p.codec.UnmarshalEvent(context.Background(), data)
		if err != nil {
			p.report(&HandlerError{
				Err: fmt.Errorf("could not unmarshal event: %w", err),
				Ctx: context.Background(),
			})

			continue
		}

		p.handlersMu.RLock()
		handlers := p.handlers[event.NotificationType()]
		p.handlersMu.RUnlock()

		for _, h := range handlers {
			if err := h.HandleNotification(ctx, event); err != nil {
				p.report(&HandlerError{
					Err:   fmt.Errorf("could not handle event: %w", err),
					Ctx:   ctx,
					Event: event,
				})
			}
		}
	}
}

func (p *Publisher) report(err error) {
	select {
	case p.errCh <- err:
	default:
		p.logger.Error("missed error in local publisher", zap.Error(err))
	}
}

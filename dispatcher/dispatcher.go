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

// Package dispatcher implements mediator.Mediator on top of a
// mediator.HandlerResolver.
//
// The dispatch process of a request is as follows:
// 1. The pre-processors matching the request run in registration order
// 2. The single handler of the request type is resolved
// 3. The matching behaviors are sorted by the pipeline order and wrapped
//    around the handler, the first one being the outermost
// 4. The pipeline is invoked
// 5. The post-processors run with the request and the response
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

// ErrMissingResolver is when no handler resolver is provided.
var ErrMissingResolver = errors.New("missing handler resolver")

// Dispatcher is a mediator.Mediator dispatching requests through a pipeline of
// behaviors resolved per request.
type Dispatcher struct {
	resolver med.HandlerResolver
	order    med.PipelineOrder
	logger   *zap.Logger
}

// Option is an option setter used to configure creation.
type Option func(*Dispatcher) error

// WithPipelineOrder sets the order of the behaviors. A nil order keeps the
// registration order. The default is mediator.DefaultPipelineOrder.
func WithPipelineOrder(order med.PipelineOrder) Option {
	return func(d *Dispatcher) error {
		d.order = order

		return nil
	}
}

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) error {
		if logger == nil {
			return errors.New("missing logger")
		}

		d.logger = logger

		return nil
	}
}

// NewDispatcher creates a new Dispatcher resolving from the resolver.
func NewDispatcher(resolver med.HandlerResolver, options ...Option) (*Dispatcher, error) {
	if resolver == nil {
		return nil, ErrMissingResolver
	}

	d := &Dispatcher{
		resolver: resolver,
		order:    med.DefaultPipelineOrder(),
		logger:   zap.NewNop(),
	}

	for _, option := range options {
		if err := option(d); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return d, nil
}

// Send implements the Send method of the mediator.Sender interface.
func (d *Dispatcher) Send(ctx context.Context, req med.Request) (interface{}, error) {
	if req == nil {
		return nil, med.ErrMissingRequest
	}

	return d.dispatch(ctx, req, d.resolver.RequestHandlers)
}

// SendVoid implements the SendVoid method of the mediator.Sender interface.
func (d *Dispatcher) SendVoid(ctx context.Context, req med.Request) error {
	if req == nil {
		return med.ErrMissingRequest
	}

	_, err := d.dispatch(ctx, req, d.resolver.VoidHandlers)

	return err
}

// Publish implements the Publish method of the mediator.NotificationPublisher
// interface. Handlers run sequentially in registration order and the first
// failure aborts the remaining handlers.
func (d *Dispatcher) Publish(ctx context.Context, n med.Notification) error {
	if n == nil {
		return med.ErrMissingNotification
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	for i, h := range d.resolver.NotificationHandlers(n.NotificationType()) {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := h.HandleNotification(ctx, n); err != nil {
			d.logger.Debug("notification handler failed",
				zap.Stringer("notification_type", n.NotificationType()),
				zap.Error(err),
			)

			return err
		}
	}

	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req med.Request, handlers func(med.RequestType) []med.RequestHandler) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, p := range d.resolver.PreProcessors(req) {
		if err := p.PreProcess(ctx, req); err != nil {
			return nil, err
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	h, err := resolveHandler(req.RequestType(), handlers(req.RequestType()))
	if err != nil {
		d.logger.Debug("could not resolve handler",
			zap.Stringer("request_type", req.RequestType()),
			zap.Error(err),
		)

		return nil, err
	}

	terminal := func(ctx context.Context) (interface{}, error) {
		return h.HandleRequest(ctx, req)
	}

	behaviors := d.order.Sort(d.resolver.Behaviors(req))
	pipeline := med.Chain(req, terminal, behaviors...)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := pipeline(ctx)
	if err != nil {
		return nil, err
	}

	for _, p := range d.resolver.PostProcessors(req) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := p.PostProcess(ctx, req, resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

func resolveHandler(t med.RequestType, handlers []med.RequestHandler) (med.RequestHandler, error) {
	switch len(handlers) {
	case 0:
		return nil, &med.NoHandlerError{RequestType: t}
	case 1:
		return handlers[0], nil
	default:
		return nil, &med.AmbiguousHandlerError{RequestType: t, Count: len(handlers)}
	}
}

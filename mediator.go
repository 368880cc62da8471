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

// Package mediator is an in-process request dispatcher. Requests are routed
// to exactly one handler through an ordered pipeline of behaviors, and events
// raised while handling them are dispatched in-process or delivered to other
// processes through a publisher with a transactional outbox as fallback.
package mediator

import "context"

// Sender sends requests to their handlers.
type Sender interface {
	// Send dispatches a request to its handler and returns the response.
	Send(context.Context, Request) (interface{}, error)
	// SendVoid dispatches a request to its handler registered without a response.
	SendVoid(context.Context, Request) error
}

// Mediator sends requests and publishes notifications.
type Mediator interface {
	Sender
	NotificationPublisher
}

// HandlerResolver resolves the registered parts of a pipeline. All methods
// return the matches in registration order, possibly empty.
type HandlerResolver interface {
	// RequestHandlers returns the handlers of a request type.
	RequestHandlers(RequestType) []RequestHandler
	// VoidHandlers returns the handlers without response of a request type.
	VoidHandlers(RequestType) []RequestHandler
	// NotificationHandlers returns the handlers of a notification type.
	NotificationHandlers(NotificationType) []NotificationHandler
	// Behaviors returns the behaviors matching a request.
	Behaviors(Request) []Behavior
	// PreProcessors returns the pre-processors matching a request.
	PreProcessors(Request) []PreProcessor
	// PostProcessors returns the post-processors matching a request.
	PostProcessors(Request) []PostProcessor
}

// Send sends a request and asserts the type of its response.
func Send[R any](ctx context.Context, s Sender, req Request) (R, error) {
	var zero R

	resp, err := s.Send(ctx, req)
	if err != nil {
		return zero, err
	}

	if resp == nil {
		return zero, nil
	}

	r, ok := resp.(R)
	if !ok {
		return zero, &ResponseTypeError{RequestType: req.RequestType(), Response: resp}
	}

	return r, nil
}

// Execute sends a request without a response.
func Execute(ctx context.Context, s Sender, req Request) error {
	return s.SendVoid(ctx, req)
}

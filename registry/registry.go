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

// Package registry holds the handlers, behaviors and processors that a
// dispatcher resolves per request.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	med "github.com/looplab/mediator"
)

var (
	// ErrDuplicateHandler is reported by Validate when a request type has more
	// than one handler.
	ErrDuplicateHandler = errors.New("duplicate handler")
	// ErrBehaviorNotRegistered is reported by Validate when the pipeline order
	// lists a kind without any registered behavior.
	ErrBehaviorNotRegistered = errors.New("behavior in pipeline order is not registered")
	// ErrMissingRequestType is when a handler is registered without a type.
	ErrMissingRequestType = errors.New("missing request type")
	// ErrMissingNotificationType is when a notification handler is registered
	// without a type.
	ErrMissingNotificationType = errors.New("missing notification type")
)

// Registry is a thread-safe mediator.HandlerResolver where the parts of the
// pipeline are registered explicitly. More than one handler can be registered
// for a request type; dispatching such a request fails and Validate reports it.
type Registry struct {
	handlers             map[med.RequestType][]med.RequestHandler
	voidHandlers         map[med.RequestType][]med.RequestHandler
	notificationHandlers map[med.NotificationType][]med.NotificationHandler
	behaviors            []matchedBehavior
	preProcessors        []matchedPreProcessor
	postProcessors       []matchedPostProcessor
	middleware           []med.NotificationHandlerMiddleware
	mu                   sync.RWMutex
}

type matchedBehavior struct {
	med.RequestMatcher
	med.Behavior
}

type matchedPreProcessor struct {
	med.RequestMatcher
	med.PreProcessor
}

type matchedPostProcessor struct {
	med.RequestMatcher
	med.PostProcessor
}

// Option is an option setter used to configure creation.
type Option func(*Registry) error

// WithNotificationHandlerMiddleware wraps every notification handler added
// after creation in the middleware, the first being the outermost.
func WithNotificationHandlerMiddleware(middleware ...med.NotificationHandlerMiddleware) Option {
	return func(r *Registry) error {
		r.middleware = append(r.middleware, middleware...)

		return nil
	}
}

// NewRegistry creates a new empty Registry.
func NewRegistry(options ...Option) (*Registry, error) {
	r := &Registry{
		handlers:             map[med.RequestType][]med.RequestHandler{},
		voidHandlers:         map[med.RequestType][]med.RequestHandler{},
		notificationHandlers: map[med.NotificationType][]med.NotificationHandler{},
	}

	for _, option := range options {
		if err := option(r); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	return r, nil
}

// AddHandler adds a handler with a response for a request type.
func (r *Registry) AddHandler(t med.RequestType, h med.RequestHandler) error {
	return r.addHandler(r.handlers, t, h)
}

// AddVoidHandler adds a handler without a response for a request type.
func (r *Registry) AddVoidHandler(t med.RequestType, h med.RequestHandler) error {
	return r.addHandler(r.voidHandlers, t, h)
}

func (r *Registry) addHandler(handlers map[med.RequestType][]med.RequestHandler, t med.RequestType, h med.RequestHandler) error {
	if t == "" {
		return ErrMissingRequestType
	}

	if h == nil {
		return med.ErrMissingHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	handlers[t] = append(handlers[t], h)

	return nil
}

// AddNotificationHandler adds a handler for a notification type. Handlers of
// the same type are invoked in the order they were added.
func (r *Registry) AddNotificationHandler(t med.NotificationType, h med.NotificationHandler) error {
	if t == "" {
		return ErrMissingNotificationType
	}

	if h == nil {
		return med.ErrMissingHandler
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	h = med.UseNotificationHandlerMiddleware(h, r.middleware...)
	r.notificationHandlers[t] = append(r.notificationHandlers[t], h)

	return nil
}

// AddBehavior adds a behavior for the requests matched by the matcher.
func (r *Registry) AddBehavior(m med.RequestMatcher, b med.Behavior) error {
	if m == nil {
		return med.ErrMissingMatcher
	}

	if b == nil {
		return med.ErrMissingBehavior
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.behaviors = append(r.behaviors, matchedBehavior{m, b})

	return nil
}

// AddPreProcessor adds a pre-processor for the requests matched by the matcher.
func (r *Registry) AddPreProcessor(m med.RequestMatcher, p med.PreProcessor) error {
	if m == nil {
		return med.ErrMissingMatcher
	}

	if p == nil {
		return med.ErrMissingProcessor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.preProcessors = append(r.preProcessors, matchedPreProcessor{m, p})

	return nil
}

// AddPostProcessor adds a post-processor for the requests matched by the matcher.
func (r *Registry) AddPostProcessor(m med.RequestMatcher, p med.PostProcessor) error {
	if m == nil {
		return med.ErrMissingMatcher
	}

	if p == nil {
		return med.ErrMissingProcessor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.postProcessors = append(r.postProcessors, matchedPostProcessor{m, p})

	return nil
}

// RequestHandlers implements the RequestHandlers method of the
// mediator.HandlerResolver interface.
func (r *Registry) RequestHandlers(t med.RequestType) []med.RequestHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]med.RequestHandler(nil), r.handlers[t]...)
}

// VoidHandlers implements the VoidHandlers method of the
// mediator.HandlerResolver interface.
func (r *Registry) VoidHandlers(t med.RequestType) []med.RequestHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]med.RequestHandler(nil), r.voidHandlers[t]...)
}

// NotificationHandlers implements the NotificationHandlers method of the
// mediator.HandlerResolver interface.
func (r *Registry) NotificationHandlers(t med.NotificationType) []med.NotificationHandler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]med.NotificationHandler(nil), r.notificationHandlers[t]...)
}

// Behaviors implements the Behaviors method of the mediator.HandlerResolver interface.
func (r *Registry) Behaviors(req med.Request) []med.Behavior {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var behaviors []med.Behavior

	for _, mb := range r.behaviors {
		if mb.RequestMatcher(req) {
			behaviors = append(behaviors, mb.Behavior)
		}
	}

	return behaviors
}

// PreProcessors implements the PreProcessors method of the mediator.HandlerResolver interface.
func (r *Registry) PreProcessors(req med.Request) []med.PreProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var processors []med.PreProcessor

	for _, mp := range r.preProcessors {
		if mp.RequestMatcher(req) {
			processors = append(processors, mp.PreProcessor)
		}
	}

	return processors
}

// PostProcessors implements the PostProcessors method of the mediator.HandlerResolver interface.
func (r *Registry) PostProcessors(req med.Request) []med.PostProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var processors []med.PostProcessor

	for _, mp := range r.postProcessors {
		if mp.RequestMatcher(req) {
			processors = append(processors, mp.PostProcessor)
		}
	}

	return processors
}

// Validate checks the registrations at startup. It reports every request type
// with more than one handler and every kind in the pipeline order that has no
// registered behavior.
func (r *Registry) Validate(order med.PipelineOrder) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error

	for _, handlers := range []map[med.RequestType][]med.RequestHandler{r.handlers, r.voidHandlers} {
		types := make([]string, 0, len(handlers))
		for t, hs := range handlers {
			if len(hs) > 1 {
				types = append(types, string(t))
			}
		}

		sort.Strings(types)

		for _, t := range types {
			errs = append(errs, fmt.Errorf("%w: %s has %d handlers", ErrDuplicateHandler, t, len(handlers[med.RequestType(t)])))
		}
	}

	registered := map[med.BehaviorKind]bool{}
	for _, mb := range r.behaviors {
		registered[mb.BehaviorKind()] = true
	}

	for _, kind := range order {
		if !registered[kind] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrBehaviorNotRegistered, kind))
		}
	}

	return errors.Join(errs...)
}

// Handle registers a typed handler with a response for a request type.
func Handle[Q med.Request, R any](r *Registry, t med.RequestType, f func(context.Context, Q) (R, error)) error {
	return r.AddHandler(t, med.HandlerFunc(f))
}

// HandleVoid registers a typed handler without a response for a request type.
func HandleVoid[Q med.Request](r *Registry, t med.RequestType, f func(context.Context, Q) error) error {
	return r.AddVoidHandler(t, med.VoidHandlerFunc(f))
}

// HandleNotification registers a typed handler for a notification type.
func HandleNotification[N med.Notification](r *Registry, t med.NotificationType, f func(context.Context, N) error) error {
	return r.AddNotificationHandler(t, med.NotificationHandlerFunc(func(ctx context.Context, n med.Notification) error {
		typed, ok := n.(N)
		if !ok {
			return fmt.Errorf("%w: %T", med.ErrInvalidNotification, n)
		}

		return f(ctx, typed)
	}))
}

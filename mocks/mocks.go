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

package mocks

import (
	"context"
	"sync"
	"testing"
	"time"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/uuid"
)

func init() {
	med.RegisterIntegrationEvent(IntegrationEventType, func() med.IntegrationEvent {
		return &IntegrationEvent{}
	})
}

const (
	// RequestType is the type for Request.
	RequestType med.RequestType = "Request"
	// RequestOtherType is the type for RequestOther.
	RequestOtherType med.RequestType = "RequestOther"
	// QueryType is the type for Query.
	QueryType med.RequestType = "Query"

	// DomainEventType is the type for DomainEvent.
	DomainEventType med.NotificationType = "DomainEvent"
	// IntegrationEventType is the type for IntegrationEvent.
	IntegrationEventType med.NotificationType = "IntegrationEvent"
)

// Request is a mocked mediator.Request, useful in testing.
type Request struct {
	ID      uuid.UUID
	Content string
}

// RequestType implements the RequestType method of the mediator.Request interface.
func (r Request) RequestType() med.RequestType { return RequestType }

// RequestOther is a mocked mediator.Request, useful in testing.
type RequestOther struct {
	Content string `mediator:"optional"`
}

// RequestType implements the RequestType method of the mediator.Request interface.
func (r RequestOther) RequestType() med.RequestType { return RequestOtherType }

// Query is a mocked cacheable query, useful in testing.
type Query struct {
	Key string
	TTL time.Duration
}

// RequestType implements the RequestType method of the mediator.Request interface.
func (q Query) RequestType() med.RequestType { return QueryType }

// CacheKey implements the CacheKey method of the mediator.Cacheable interface.
func (q Query) CacheKey() string { return q.Key }

// CacheTTL implements the CacheTTL method of the mediator.Cacheable interface.
func (q Query) CacheTTL() time.Duration { return q.TTL }

// DomainEvent is a mocked mediator.DomainEvent, useful in testing.
type DomainEvent struct {
	Content string
}

// NotificationType implements the NotificationType method of the mediator.Notification interface.
func (e DomainEvent) NotificationType() med.NotificationType { return DomainEventType }

// IntegrationEvent is a mocked mediator.IntegrationEvent, useful in testing.
type IntegrationEvent struct {
	ID      uuid.UUID `json:"id" bson:"id"`
	Content string    `json:"content" bson:"content"`
}

// NewIntegrationEvent creates a new IntegrationEvent with a random ID.
func NewIntegrationEvent(content string) *IntegrationEvent {
	return &IntegrationEvent{ID: uuid.New(), Content: content}
}

// NotificationType implements the NotificationType method of the mediator.Notification interface.
func (e *IntegrationEvent) NotificationType() med.NotificationType { return IntegrationEventType }

// EventID implements the EventID method of the mediator.IntegrationEvent interface.
func (e *IntegrationEvent) EventID() uuid.UUID { return e.ID }

// Aggregate is a mocked domain object buffering its events, useful in testing.
type Aggregate struct {
	med.EventBuffer
	ID      uuid.UUID
	Content string
}

// Rename changes the content and raises events for it.
func (a *Aggregate) Rename(content string) {
	a.Content = content
	a.RaiseDomainEvent(DomainEvent{Content: content})
	a.RaiseIntegrationEvent(NewIntegrationEvent(content))
}

// RequestHandler is a mocked mediator.RequestHandler, useful in testing.
type RequestHandler struct {
	sync.Mutex
	Requests []med.Request
	Context  context.Context
	Response interface{}
	// Used to simulate errors when handling.
	Err error
}

// HandleRequest implements the HandleRequest method of the mediator.RequestHandler interface.
func (h *RequestHandler) HandleRequest(ctx context.Context, req med.Request) (interface{}, error) {
	h.Lock()
	defer h.Unlock()

	h.Requests = append(h.Requests, req)
	h.Context = ctx

	if h.Err != nil {
		return nil, h.Err
	}

	return h.Response, nil
}

// NotificationHandler is a mocked mediator.NotificationHandler, useful in testing.
type NotificationHandler struct {
	sync.Mutex
	Notifications []med.Notification
	Context       context.Context
	Recv          chan med.Notification
	// Used to simulate errors when handling.
	Err error
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler() *NotificationHandler {
	return &NotificationHandler{
		Context: context.Background(),
		Recv:    make(chan med.Notification, 10),
	}
}

// HandleNotification implements the HandleNotification method of the
// mediator.NotificationHandler interface.
func (h *NotificationHandler) HandleNotification(ctx context.Context, n med.Notification) error {
	h.Lock()
	defer h.Unlock()

	if h.Err != nil {
		return h.Err
	}

	h.Notifications = append(h.Notifications, n)
	h.Context = ctx

	select {
	case h.Recv <- n:
	default:
	}

	return nil
}

// WaitForNotification is a helper to wait until a notification has been
// handled, it timeouts after 1 second.
func (h *NotificationHandler) WaitForNotification(t *testing.T) {
	select {
	case <-h.Recv:
		return
	case <-time.After(time.Second):
		t.Error("did not receive notification in time")
	}
}

// Publisher is a mocked mediator.IntegrationPublisher, useful in testing.
type Publisher struct {
	sync.Mutex
	Events []med.IntegrationEvent
	Calls  int
	// Used to simulate errors when publishing, for all events or by ID.
	Err   error
	ErrBy map[uuid.UUID]error
}

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// mediator.IntegrationPublisher interface.
func (p *Publisher) PublishIntegrationEvent(ctx context.Context, e med.IntegrationEvent) error {
	p.Lock()
	defer p.Unlock()

	p.Calls++

	if p.Err != nil {
		return p.Err
	}

	if err, ok := p.ErrBy[e.EventID()]; ok {
		return err
	}

	p.Events = append(p.Events, e)

	return nil
}

// Published returns a copy of the published events.
func (p *Publisher) Published() []med.IntegrationEvent {
	p.Lock()
	defer p.Unlock()

	return append([]med.IntegrationEvent(nil), p.Events...)
}

// TransactionManager is a mocked mediator.TransactionManager, useful in testing.
type TransactionManager struct {
	sync.Mutex
	Begun      int
	Committed  int
	RolledBack int
	// Used to simulate errors in the transaction operations.
	BeginErr    error
	CommitErr   error
	RollbackErr error
}

type txKey struct{}

// InTransaction reports whether the context carries a transaction begun by a
// TransactionManager mock.
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*transaction)
	return ok
}

// Begin implements the Begin method of the mediator.TransactionManager interface.
func (m *TransactionManager) Begin(ctx context.Context) (context.Context, med.Transaction, error) {
	m.Lock()
	defer m.Unlock()

	if m.BeginErr != nil {
		return ctx, nil, m.BeginErr
	}

	m.Begun++
	tx := &transaction{m: m}

	return context.WithValue(ctx, txKey{}, tx), tx, nil
}

type transaction struct {
	m    *TransactionManager
	done bool
}

func (t *transaction) Commit(ctx context.Context) error {
	t.m.Lock()
	defer t.m.Unlock()

	if t.m.CommitErr != nil {
		return t.m.CommitErr
	}

	t.done = true
	t.m.Committed++

	return nil
}

func (t *transaction) Rollback(ctx context.Context) error {
	t.m.Lock()
	defer t.m.Unlock()

	if t.done {
		return nil
	}

	t.done = true
	t.m.RolledBack++

	return t.m.RollbackErr
}

type contextKey int

const (
	contextKeyOne contextKey = iota
)

const (
	// The string key used to marshal contextKeyOne.
	contextKeyOneStr = "context_one"
)

// Register the marshalers and unmarshalers for ContextOne.
func init() {
	med.RegisterContextMarshaler(func(ctx context.Context, vals map[string]interface{}) {
		if val, ok := ContextOne(ctx); ok {
			vals[contextKeyOneStr] = val
		}
	})
	med.RegisterContextUnmarshaler(func(ctx context.Context, vals map[string]interface{}) context.Context {
		if val, ok := vals[contextKeyOneStr].(string); ok {
			return WithContextOne(ctx, val)
		}

		return ctx
	})
}

// WithContextOne sets a value for One one the context.
func WithContextOne(ctx context.Context, val string) context.Context {
	return context.WithValue(ctx, contextKeyOne, val)
}

// ContextOne returns a value for One from the context.
func ContextOne(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(contextKeyOne).(string)
	return val, ok
}

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

package mediator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/looplab/mediator/uuid"
)

// DomainEvent is a notification handled in-process within the same unit of
// work that raised it.
type DomainEvent interface {
	Notification
}

// IntegrationEvent is a notification meant for delivery to other processes.
// Its ID is used to deduplicate it in the outbox.
type IntegrationEvent interface {
	Notification

	// EventID returns the globally unique ID of the event.
	EventID() uuid.UUID
}

// EventSource is implemented by domain objects that buffer events raised while
// they are modified. EventBuffer can be embedded to implement it.
type EventSource interface {
	// DomainEvents returns the buffered domain events, in the order raised.
	DomainEvents() []DomainEvent
	// IntegrationEvents returns the buffered integration events, in the order raised.
	IntegrationEvents() []IntegrationEvent
	// ClearEvents clears the buffered events.
	ClearEvents()
}

// EventBuffer is a buffer of raised events to be owned by a domain object.
type EventBuffer struct {
	domainEvents      []DomainEvent
	integrationEvents []IntegrationEvent
}

// RaiseDomainEvent appends a domain event to the buffer.
func (b *EventBuffer) RaiseDomainEvent(e DomainEvent) {
	b.domainEvents = append(b.domainEvents, e)
}

// RaiseIntegrationEvent appends an integration event to the buffer.
func (b *EventBuffer) RaiseIntegrationEvent(e IntegrationEvent) {
	b.integrationEvents = append(b.integrationEvents, e)
}

// DomainEvents implements the DomainEvents method of the EventSource interface.
func (b *EventBuffer) DomainEvents() []DomainEvent {
	return b.domainEvents
}

// IntegrationEvents implements the IntegrationEvents method of the EventSource interface.
func (b *EventBuffer) IntegrationEvents() []IntegrationEvent {
	return b.integrationEvents
}

// ClearEvents implements the ClearEvents method of the EventSource interface.
func (b *EventBuffer) ClearEvents() {
	b.domainEvents = nil
	b.integrationEvents = nil
}

// EventCollector accumulates the events raised during one unit of work. It is
// owned by a single request and must not be shared between concurrent requests.
type EventCollector interface {
	// Track adds a domain object whose buffered events will be collected on Drain.
	Track(EventSource)
	// AddDomainEvent adds a domain event directly to the collector.
	AddDomainEvent(DomainEvent)
	// AddIntegrationEvent adds an integration event directly to the collector.
	AddIntegrationEvent(IntegrationEvent)
	// Drain returns all collected events in the order raised and empties the
	// collector, including the buffers of tracked objects.
	Drain() ([]DomainEvent, []IntegrationEvent)
	// Discard drops all collected events without returning them.
	Discard()
}

// ErrIntegrationEventNotRegistered is when no integration event factory was
// registered for a type.
var ErrIntegrationEventNotRegistered = errors.New("integration event not registered")

var integrationEventFactories = make(map[NotificationType]func() IntegrationEvent)
var integrationEventFactoriesMu sync.RWMutex

// RegisterIntegrationEvent registers a factory for an integration event type,
// used to create concrete events when decoding them from the wire or a store.
// The factory must return a pointer to a new event.
//
// An example would be:
//     RegisterIntegrationEvent(OrderPlacedType, func() IntegrationEvent { return &OrderPlaced{} })
func RegisterIntegrationEvent(eventType NotificationType, factory func() IntegrationEvent) {
	if eventType == NotificationType("") {
		panic("mediator: attempt to register empty integration event type")
	}

	integrationEventFactoriesMu.Lock()
	defer integrationEventFactoriesMu.Unlock()

	if _, ok := integrationEventFactories[eventType]; ok {
		panic(fmt.Sprintf("mediator: registering duplicate types for %q", eventType))
	}

	integrationEventFactories[eventType] = factory
}

// UnregisterIntegrationEvent removes the factory for an integration event type.
func UnregisterIntegrationEvent(eventType NotificationType) {
	if eventType == NotificationType("") {
		panic("mediator: attempt to unregister empty integration event type")
	}

	integrationEventFactoriesMu.Lock()
	defer integrationEventFactoriesMu.Unlock()

	if _, ok := integrationEventFactories[eventType]; !ok {
		panic(fmt.Sprintf("mediator: unregister of non-registered type %q", eventType))
	}

	delete(integrationEventFactories, eventType)
}

// CreateIntegrationEvent creates an empty integration event of a registered type.
func CreateIntegrationEvent(eventType NotificationType) (IntegrationEvent, error) {
	integrationEventFactoriesMu.RLock()
	defer integrationEventFactoriesMu.RUnlock()

	if factory, ok := integrationEventFactories[eventType]; ok {
		return factory(), nil
	}

	return nil, ErrIntegrationEventNotRegistered
}

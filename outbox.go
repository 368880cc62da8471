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
	"context"

	"github.com/looplab/mediator/uuid"
)

// IntegrationPublisher delivers integration events to other processes.
type IntegrationPublisher interface {
	// PublishIntegrationEvent publishes an integration event.
	PublishIntegrationEvent(context.Context, IntegrationEvent) error
}

// IntegrationPublisherFunc is a function that can be used as a publisher.
type IntegrationPublisherFunc func(context.Context, IntegrationEvent) error

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// IntegrationPublisher interface.
func (f IntegrationPublisherFunc) PublishIntegrationEvent(ctx context.Context, e IntegrationEvent) error {
	return f(ctx, e)
}

// OutboxStore persists integration events that could not be published
// immediately. Implementations must be safe for concurrent use.
type OutboxStore interface {
	// Save stores an event as pending, replacing any entry with the same ID.
	Save(context.Context, IntegrationEvent) error
	// GetPending returns a snapshot of the pending events. Entries that can
	// not be read are skipped: the readable events are returned together with
	// an error joining one *OutboxError per skipped entry.
	GetPending(context.Context) ([]IntegrationEvent, error)
	// MarkPublished marks an event as published. Marking an unknown or
	// already published event is a no-op.
	MarkPublished(context.Context, uuid.UUID) error
}

// PendingEvent is a pending event and the context it was saved with.
type PendingEvent struct {
	Event IntegrationEvent
	// Ctx is the context passed to GetPendingWithContext with the saved
	// context values set on it.
	Ctx context.Context
}

// PendingContextStore is an OutboxStore that keeps the marshaled context of
// the saved events. The outbox processor publishes with that context, so
// tracing and other context values continue past the outbox.
type PendingContextStore interface {
	OutboxStore
	// GetPendingWithContext is GetPending with the saved contexts.
	GetPendingWithContext(context.Context) ([]PendingEvent, error)
}

// IntegrationEventCodec is a codec for marshaling and unmarshaling integration
// events to and from bytes.
type IntegrationEventCodec interface {
	// MarshalEvent marshals an event and the supported parts of context into bytes.
	MarshalEvent(context.Context, IntegrationEvent) ([]byte, error)
	// UnmarshalEvent unmarshals an event and supported parts of context from bytes.
	UnmarshalEvent(context.Context, []byte) (IntegrationEvent, context.Context, error)
}

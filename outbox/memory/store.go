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

// Package memory provides a thread-safe in-memory outbox store.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/uuid"
)

// ErrMissingEvent is when saving a nil event.
var ErrMissingEvent = errors.New("missing event")

// Store is an in-memory mediator.OutboxStore. Events are copied when saved
// and returned, and pending events are returned in the order first saved.
// The marshalable context values of the save are kept with the event.
type Store struct {
	db    map[uuid.UUID]*entry
	order []uuid.UUID
	dbMu  sync.RWMutex
}

// entry is the representation of an outbox entry.
type entry struct {
	Event       med.IntegrationEvent
	Context     map[string]interface{}
	CreatedAt   time.Time
	PublishedAt time.Time
}

func (e *entry) published() bool {
	return !e.PublishedAt.IsZero()
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{
		db: map[uuid.UUID]*entry{},
	}
}

// Save implements the Save method of the mediator.OutboxStore interface. Saving
// an event with a known ID replaces its content but keeps its state.
func (s *Store) Save(ctx context.Context, event med.IntegrationEvent) error {
	if event == nil {
		return ErrMissingEvent
	}

	e, err := copyEvent(event)
	if err != nil {
		return fmt.Errorf("could not copy event: %w", err)
	}

	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	vals := med.MarshalContext(ctx)

	if r, ok := s.db[event.EventID()]; ok {
		r.Event = e
		r.Context = vals

		return nil
	}

	s.db[event.EventID()] = &entry{
		Event:     e,
		Context:   vals,
		CreatedAt: time.Now(),
	}
	s.order = append(s.order, event.EventID())

	return nil
}

// GetPending implements the GetPending method of the mediator.OutboxStore interface.
func (s *Store) GetPending(ctx context.Context) ([]med.IntegrationEvent, error) {
	pending, err := s.GetPendingWithContext(ctx)
	if err != nil {
		return nil, err
	}

	events := make([]med.IntegrationEvent, 0, len(pending))
	for _, p := range pending {
		events = append(events, p.Event)
	}

	return events, nil
}

// GetPendingWithContext implements the GetPendingWithContext method of the
// mediator.PendingContextStore interface.
func (s *Store) GetPendingWithContext(ctx context.Context) ([]med.PendingEvent, error) {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()

	pending := []med.PendingEvent{}

	for _, id := range s.order {
		r := s.db[id]
		if r.published() {
			continue
		}

		e, err := copyEvent(r.Event)
		if err != nil {
			return nil, fmt.Errorf("could not copy event: %w", err)
		}

		pending = append(pending, med.PendingEvent{
			Event: e,
			Ctx:   med.UnmarshalContext(ctx, r.Context),
		})
	}

	return pending, nil
}

// MarkPublished implements the MarkPublished method of the mediator.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	if r, ok := s.db[id]; ok && !r.published() {
		r.PublishedAt = time.Now()
	}

	return nil
}

// Purge removes published entries older than the age.
func (s *Store) Purge(age time.Duration) {
	s.dbMu.Lock()
	defer s.dbMu.Unlock()

	limit := time.Now().Add(-age)
	order := s.order[:0]

	for _, id := range s.order {
		if r := s.db[id]; r.published() && !r.PublishedAt.After(limit) {
			delete(s.db, id)

			continue
		}

		order = append(order, id)
	}

	s.order = order
}

// Len returns the number of entries, pending and published.
func (s *Store) Len() int {
	s.dbMu.RLock()
	defer s.dbMu.RUnlock()

	return len(s.db)
}

// copyEvent duplicates an event of a registered type, other events are
// returned as is.
func copyEvent(event med.IntegrationEvent) (med.IntegrationEvent, error) {
	e, err := med.CreateIntegrationEvent(event.NotificationType())
	if errors.Is(err, med.ErrIntegrationEventNotRegistered) {
		return event, nil
	} else if err != nil {
		return nil, err
	}

	if err := copier.Copy(e, event); err != nil {
		return nil, err
	}

	return e, nil
}

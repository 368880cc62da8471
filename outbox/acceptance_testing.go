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

package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kr/pretty"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/uuid"
)

// AcceptanceTest is the acceptance test that all implementations of
// mediator.OutboxStore should pass. It should manually be called from a test
// case in each implementation:
//
//   func TestStore(t *testing.T) {
//       s := NewStore()
//       outbox.AcceptanceTest(t, s, context.Background())
//   }
//
func AcceptanceTest(t *testing.T, s med.OutboxStore, ctx context.Context) {
	ctx = mocks.WithContextOne(ctx, "testval")

	// Empty store.
	pending, err := s.GetPending(ctx)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if len(pending) != 0 {
		t.Error("there should be no pending events:", pending)
	}

	event1 := mocks.NewIntegrationEvent("event1")
	event2 := mocks.NewIntegrationEvent("event2")

	if err := s.Save(ctx, event1); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := s.Save(ctx, event2); err != nil {
		t.Error("there should be no error:", err)
	}

	// Saving again is an upsert by ID.
	if err := s.Save(ctx, event1); err != nil {
		t.Error("there should be no error:", err)
	}

	pending, err = s.GetPending(ctx)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	expected := []med.IntegrationEvent{event1, event2}
	if err := compareEvents(pending, expected); err != nil {
		t.Error("the pending events should be correct:", err)
		t.Log(pretty.Sprint(pending))
	}

	// Pending events are a snapshot.
	event3 := mocks.NewIntegrationEvent("event3")
	if err := s.Save(ctx, event3); err != nil {
		t.Error("there should be no error:", err)
	}

	if len(pending) != 2 {
		t.Error("the snapshot should not change:", len(pending))
	}

	// Mark as published, twice and for an unknown ID.
	if err := s.MarkPublished(ctx, event1.ID); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := s.MarkPublished(ctx, event1.ID); err != nil {
		t.Error("there should be no error when marking twice:", err)
	}

	if err := s.MarkPublished(ctx, uuid.New()); err != nil {
		t.Error("there should be no error for an unknown ID:", err)
	}

	pending, err = s.GetPending(ctx)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	expected = []med.IntegrationEvent{event2, event3}
	if err := compareEvents(pending, expected); err != nil {
		t.Error("the pending events should be correct:", err)
		t.Log(pretty.Sprint(pending))
	}

	// Saving a published event does not make it pending again.
	if err := s.Save(ctx, event1); err != nil {
		t.Error("there should be no error:", err)
	}

	if pending, _ = s.GetPending(ctx); len(pending) != 2 {
		t.Error("a published event should stay published:", len(pending))
	}

	// Concurrent use.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			e := mocks.NewIntegrationEvent(fmt.Sprintf("concurrent%d", i))
			if err := s.Save(ctx, e); err != nil {
				t.Error("there should be no error:", err)
			}

			if _, err := s.GetPending(ctx); err != nil {
				t.Error("there should be no error:", err)
			}

			if err := s.MarkPublished(ctx, e.ID); err != nil {
				t.Error("there should be no error:", err)
			}
		}(i)
	}

	wg.Wait()

	if pending, _ = s.GetPending(ctx); len(pending) != 2 {
		t.Error("the concurrent events should be published:", len(pending))
	}

	// Clean up for stores shared between tests.
	for _, e := range pending {
		if err := s.MarkPublished(ctx, e.EventID()); err != nil {
			t.Error("there should be no error:", err)
		}
	}

	// An entry of a type without a factory does not hide the other entries.
	unknown := &unregisteredEvent{ID: uuid.New()}
	if err := s.Save(ctx, unknown); err != nil {
		t.Error("there should be no error:", err)
	}

	event4 := mocks.NewIntegrationEvent("event4")
	if err := s.Save(ctx, event4); err != nil {
		t.Error("there should be no error:", err)
	}

	pending, err = s.GetPending(ctx)
	if err != nil {
		var outboxErr *med.OutboxError
		if !errors.As(err, &outboxErr) {
			t.Error("an unreadable entry should be an outbox error:", err)
		}
	}

	if !containsEvent(pending, event4.ID) {
		t.Error("the readable event should be pending:", pretty.Sprint(pending))
	}

	// The context of the save is kept by stores that support it.
	if cs, ok := s.(med.PendingContextStore); ok {
		withCtx, _ := cs.GetPendingWithContext(context.Background())

		found := false

		for _, pe := range withCtx {
			if pe.Event.EventID() != event4.ID {
				continue
			}

			found = true

			if val, ok := mocks.ContextOne(pe.Ctx); !ok || val != "testval" {
				t.Error("the saved context should be returned:", val)
			}
		}

		if !found {
			t.Error("the readable event should be pending with its context")
		}
	}

	for _, id := range []uuid.UUID{unknown.ID, event4.ID} {
		if err := s.MarkPublished(ctx, id); err != nil {
			t.Error("there should be no error:", err)
		}
	}
}

// unregisteredEvent is an integration event without a registered factory.
type unregisteredEvent struct {
	ID uuid.UUID
}

func (e *unregisteredEvent) NotificationType() med.NotificationType {
	return "UnregisteredIntegrationEvent"
}

func (e *unregisteredEvent) EventID() uuid.UUID { return e.ID }

func containsEvent(events []med.IntegrationEvent, id uuid.UUID) bool {
	for _, e := range events {
		if e.EventID() == id {
			return true
		}
	}

	return false
}

func compareEvents(events, expected []med.IntegrationEvent) error {
	if len(events) != len(expected) {
		return fmt.Errorf("incorrect number of events: %d (should be %d)", len(events), len(expected))
	}

	for i, e := range events {
		if e.EventID() != expected[i].EventID() {
			return fmt.Errorf("incorrect event ID at %d: %s (should be %s)", i, e.EventID(), expected[i].EventID())
		}

		if e.NotificationType() != expected[i].NotificationType() {
			return fmt.Errorf("incorrect event type at %d: %s (should be %s)", i, e.NotificationType(), expected[i].NotificationType())
		}

		if got, ok := e.(*mocks.IntegrationEvent); ok {
			if want := expected[i].(*mocks.IntegrationEvent); got.Content != want.Content {
				return fmt.Errorf("incorrect event content at %d: %s (should be %s)", i, got.Content, want.Content)
			}
		}
	}

	return nil
}

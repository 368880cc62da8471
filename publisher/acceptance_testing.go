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

package publisher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kr/pretty"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
)

// ReceiveFunc receives the next integration event delivered by a publisher,
// together with the context decoded from the wire.
type ReceiveFunc func(context.Context) (med.IntegrationEvent, context.Context, error)

// AcceptanceTest is the acceptance test that all implementations of
// mediator.IntegrationPublisher should pass. The receive func is used to read
// back what was published.
//
// Usage in a test:
//   func TestPublisher(t *testing.T) {
//       p := NewPublisher(...)
//       publisher.AcceptanceTest(t, p, receive, time.Second)
//   }
func AcceptanceTest(t *testing.T, p med.IntegrationPublisher, receive ReceiveFunc, timeout time.Duration) {
	ctx := mocks.WithContextOne(context.Background(), "testval")

	// Publish on a cancelled context.
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	if err := p.PublishIntegrationEvent(cancelled, mocks.NewIntegrationEvent("cancelled")); !errors.Is(err, context.Canceled) {
		t.Error("there should be a context canceled error:", err)
	}

	// Publish in order.
	expected := []*mocks.IntegrationEvent{
		mocks.NewIntegrationEvent("event1"),
		mocks.NewIntegrationEvent("event2"),
		mocks.NewIntegrationEvent("event3"),
	}

	for _, e := range expected {
		if err := p.PublishIntegrationEvent(ctx, e); err != nil {
			t.Fatal("there should be no error:", err)
		}
	}

	for i, e := range expected {
		recvCtx, cancel := context.WithTimeout(context.Background(), timeout)
		event, eventCtx, err := receive(recvCtx)
		cancel()

		if err != nil {
			t.Fatalf("there should be no error receiving event %d: %s", i, err)
		}

		if event.EventID() != e.EventID() {
			t.Errorf("the event %d should be received in order: %s", i, event.EventID())
		}

		if err := compareEvents(event, e); err != nil {
			t.Error("the event should be correct:", err)
		}

		if val, ok := mocks.ContextOne(eventCtx); !ok || val != "testval" {
			t.Error("the context should be correct:", val)
		}
	}
}

func compareEvents(got med.IntegrationEvent, want *mocks.IntegrationEvent) error {
	g, ok := got.(*mocks.IntegrationEvent)
	if !ok {
		return errors.New("incorrect event type: " + string(got.NotificationType()))
	}

	if *g != *want {
		return errors.New(pretty.Sprint(pretty.Diff(g, want)))
	}

	return nil
}

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

package collector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
)

func TestCollector_Drain(t *testing.T) {
	c := NewCollector()

	a := &mocks.Aggregate{}
	a.Rename("first")
	a.Rename("second")

	c.AddDomainEvent(mocks.DomainEvent{Content: "direct"})
	c.Track(a)
	c.Track(a)

	if c.Len() != 5 {
		t.Error("the number of collected events should be correct:", c.Len())
	}

	domainEvents, integrationEvents := c.Drain()

	assert.Equal(t, []med.DomainEvent{
		mocks.DomainEvent{Content: "direct"},
		mocks.DomainEvent{Content: "first"},
		mocks.DomainEvent{Content: "second"},
	}, domainEvents)

	if len(integrationEvents) != 2 {
		t.Fatal("there should be two integration events:", integrationEvents)
	}

	if integrationEvents[0].(*mocks.IntegrationEvent).Content != "first" {
		t.Error("the integration events should be in the order raised")
	}

	if len(a.DomainEvents()) != 0 {
		t.Error("the tracked aggregate should be cleared")
	}

	// A second drain yields nothing.
	domainEvents, integrationEvents = c.Drain()
	if len(domainEvents) != 0 || len(integrationEvents) != 0 {
		t.Error("the collector should be empty after drain")
	}
}

func TestCollector_Discard(t *testing.T) {
	c := NewCollector()

	a := &mocks.Aggregate{}
	a.Rename("content")
	c.Track(a)
	c.AddIntegrationEvent(mocks.NewIntegrationEvent("direct"))

	c.Discard()

	if c.Len() != 0 || len(a.IntegrationEvents()) != 0 {
		t.Error("all events should be discarded")
	}
}

func TestContext(t *testing.T) {
	ctx := context.Background()

	if RaiseDomainEvent(ctx, mocks.DomainEvent{}) {
		t.Error("there should be no collector in the context")
	}

	c := NewCollector()
	ctx = med.NewContextWithCollector(ctx, c)

	if !RaiseDomainEvent(ctx, mocks.DomainEvent{Content: "event"}) {
		t.Error("the event should be raised on the collector")
	}

	if !RaiseIntegrationEvent(ctx, mocks.NewIntegrationEvent("event")) {
		t.Error("the event should be raised on the collector")
	}

	if !Track(ctx, &mocks.Aggregate{}) {
		t.Error("the aggregate should be tracked")
	}

	if c.Len() != 2 {
		t.Error("the events should be collected:", c.Len())
	}
}

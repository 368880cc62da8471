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

// Package collector provides the in-memory event collector of a unit of work.
package collector

import (
	"context"
	"sync"

	med "github.com/looplab/mediator"
)

// Collector is an in-memory mediator.EventCollector. Events added directly
// come before the events of tracked sources, which are walked in the order
// they were tracked.
type Collector struct {
	mu                sync.Mutex
	sources           []med.EventSource
	domainEvents      []med.DomainEvent
	integrationEvents []med.IntegrationEvent
}

// NewCollector creates a new empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Factory returns new collectors, one per unit of work.
func Factory() med.EventCollector {
	return NewCollector()
}

// Track implements the Track method of the mediator.EventCollector interface.
// Tracking the same source twice has no effect.
func (c *Collector) Track(s med.EventSource) {
	if s == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range c.sources {
		if t == s {
			return
		}
	}

	c.sources = append(c.sources, s)
}

// AddDomainEvent implements the AddDomainEvent method of the mediator.EventCollector interface.
func (c *Collector) AddDomainEvent(e med.DomainEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.domainEvents = append(c.domainEvents, e)
}

// AddIntegrationEvent implements the AddIntegrationEvent method of the mediator.EventCollector interface.
func (c *Collector) AddIntegrationEvent(e med.IntegrationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.integrationEvents = append(c.integrationEvents, e)
}

// Drain implements the Drain method of the mediator.EventCollector interface.
func (c *Collector) Drain() ([]med.DomainEvent, []med.IntegrationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	domainEvents := c.domainEvents
	integrationEvents := c.integrationEvents

	for _, s := range c.sources {
		domainEvents = append(domainEvents, s.DomainEvents()...)
		integrationEvents = append(integrationEvents, s.IntegrationEvents()...)
		s.ClearEvents()
	}

	c.reset()

	return domainEvents, integrationEvents
}

// Discard implements the Discard method of the mediator.EventCollector interface.
func (c *Collector) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sources {
		s.ClearEvents()
	}

	c.reset()
}

// Len returns the number of collected events, including tracked sources.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.domainEvents) + len(c.integrationEvents)
	for _, s := range c.sources {
		n += len(s.DomainEvents()) + len(s.IntegrationEvents())
	}

	return n
}

func (c *Collector) reset() {
	c.sources = nil
	c.domainEvents = nil
	c.integrationEvents = nil
}

// RaiseDomainEvent adds a domain event to the collector of the unit of work in
// the context. It returns false if there is no collector.
func RaiseDomainEvent(ctx context.Context, e med.DomainEvent) bool {
	c, ok := med.CollectorFromContext(ctx)
	if !ok {
		return false
	}

	c.AddDomainEvent(e)

	return true
}

// RaiseIntegrationEvent adds an integration event to the collector of the unit
// of work in the context. It returns false if there is no collector.
func RaiseIntegrationEvent(ctx context.Context, e med.IntegrationEvent) bool {
	c, ok := med.CollectorFromContext(ctx)
	if !ok {
		return false
	}

	c.AddIntegrationEvent(e)

	return true
}

// Track tracks a domain object in the collector of the unit of work in the
// context. It returns false if there is no collector.
func Track(ctx context.Context, s med.EventSource) bool {
	c, ok := med.CollectorFromContext(ctx)
	if !ok {
		return false
	}

	c.Track(s)

	return true
}

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

// Package json provides an integration event codec in JSON format.
package json

import (
	"context"
	"encoding/json"
	"fmt"

	med "github.com/looplab/mediator"
)

// EventCodec is a codec for marshaling and unmarshaling integration events
// to and from bytes in JSON format.
type EventCodec struct{}

// MarshalEvent marshals an event into bytes in JSON format.
func (c *EventCodec) MarshalEvent(ctx context.Context, event med.IntegrationEvent) ([]byte, error) {
	e := evt{
		EventType: event.NotificationType(),
		EventID:   event.EventID().String(),
		Context:   med.MarshalContext(ctx),
	}

	var err error
	if e.RawData, err = json.Marshal(event); err != nil {
		return nil, fmt.Errorf("could not marshal event data: %w", err)
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("could not marshal event: %w", err)
	}

	return b, nil
}

// UnmarshalEvent unmarshals an event from bytes in JSON format. The event type
// must be registered with mediator.RegisterIntegrationEvent.
func (c *EventCodec) UnmarshalEvent(ctx context.Context, b []byte) (med.IntegrationEvent, context.Context, error) {
	// Decode the raw JSON event data.
	var e evt
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, nil, fmt.Errorf("could not unmarshal event: %w", err)
	}

	// Create an event of the correct type and decode from raw JSON.
	event, err := med.CreateIntegrationEvent(e.EventType)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create event: %w", err)
	}

	if err := json.Unmarshal(e.RawData, event); err != nil {
		return nil, nil, fmt.Errorf("could not unmarshal event data: %w", err)
	}

	// Unmarshal the context.
	ctx = med.UnmarshalContext(ctx, e.Context)

	return event, ctx, nil
}

// evt is the internal event used on the wire only.
type evt struct {
	EventType med.NotificationType   `json:"event_type"`
	EventID   string                 `json:"event_id"`
	RawData   json.RawMessage        `json:"data"`
	Context   map[string]interface{} `json:"context"`
}

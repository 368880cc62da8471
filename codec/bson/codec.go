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

// Package bson provides an integration event codec in BSON format.
package bson

import (
	"bytes"
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	med "github.com/looplab/mediator"
)

// EventCodec is a codec for marshaling and unmarshaling integration events
// to and from bytes in BSON format.
type EventCodec struct{}

// MarshalEvent marshals an event into bytes in BSON format.
func (c *EventCodec) MarshalEvent(ctx context.Context, event med.IntegrationEvent) ([]byte, error) {
	e := evt{
		EventType: event.NotificationType(),
		EventID:   event.EventID().String(),
		Context:   med.MarshalContext(ctx),
	}

	var err error
	if e.RawData, err = Marshal(event); err != nil {
		return nil, fmt.Errorf("could not marshal event data: %w", err)
	}

	b, err := Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("could not marshal event: %w", err)
	}

	return b, nil
}

// UnmarshalEvent unmarshals an event from bytes in BSON format. The event type
// must be registered with mediator.RegisterIntegrationEvent.
func (c *EventCodec) UnmarshalEvent(ctx context.Context, b []byte) (med.IntegrationEvent, context.Context, error) {
	// Decode the raw BSON event data.
	var e evt
	if err := Unmarshal(b, &e); err != nil {
		return nil, nil, fmt.Errorf("could not unmarshal event: %w", err)
	}

	// Create an event of the correct type and decode from raw BSON.
	event, err := med.CreateIntegrationEvent(e.EventType)
	if err != nil {
		return nil, nil, fmt.Errorf("could not create event: %w", err)
	}

	if err := Unmarshal(e.RawData, event); err != nil {
		return nil, nil, fmt.Errorf("could not unmarshal event data: %w", err)
	}

	// Unmarshal the context.
	ctx = med.UnmarshalContext(ctx, e.Context)

	return event, ctx, nil
}

// Marshal marshals a value with the registry of the package, which encodes
// UUIDs as strings.
func Marshal(v interface{}) ([]byte, error) {
	buf := &bytes.Buffer{}

	enc := bson.NewEncoder(bson.NewDocumentWriter(buf))
	enc.SetRegistry(Registry)

	if err := enc.Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal unmarshals a value with the registry of the package.
func Unmarshal(b []byte, v interface{}) error {
	dec := bson.NewDecoder(bson.NewDocumentReader(bytes.NewReader(b)))
	dec.SetRegistry(Registry)

	return dec.Decode(v)
}

// evt is the internal event used on the wire only.
type evt struct {
	EventType med.NotificationType   `bson:"event_type"`
	EventID   string                 `bson:"event_id"`
	RawData   bson.Raw               `bson:"data"`
	Context   map[string]interface{} `bson:"context"`
}

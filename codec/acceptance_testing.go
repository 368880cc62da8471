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

package codec

import (
	"context"
	"reflect"
	"testing"
	"time"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/uuid"
)

func init() {
	med.RegisterIntegrationEvent(EventType, func() med.IntegrationEvent { return &Event{} })
}

// EventType is a the type for Event.
const EventType med.NotificationType = "CodecEvent"

// EventCodecAcceptanceTest is the acceptance test that all implementations of
// mediator.IntegrationEventCodec should pass. It should manually be called
// from a test case in each implementation:
//
//   func TestEventCodec(t *testing.T) {
//       c := EventCodec{}
//       expectedBytes = []byte("")
//       codec.EventCodecAcceptanceTest(t, c, expectedBytes)
//   }
//
// The comparison of the encoded bytes is skipped for nil expected bytes.
func EventCodecAcceptanceTest(t *testing.T, c med.IntegrationEventCodec, expectedBytes []byte) {
	// Marshaling.
	ctx := mocks.WithContextOne(context.Background(), "testval")
	id := uuid.MustParse("10a7ec0f-7f2b-46f5-bca1-877b6e33c9fd")
	timestamp := time.Date(2009, time.November, 10, 23, 0, 0, 0, time.UTC)
	event := &Event{
		ID:      id,
		Bool:    true,
		String:  "string",
		Number:  42.0,
		Slice:   []string{"a", "b"},
		Map:     map[string]interface{}{"key": "value"}, // NOTE: Just one key to avoid compare issues.
		Time:    timestamp,
		TimeRef: &timestamp,
		Struct: Nested{
			Bool:   true,
			String: "string",
			Number: 42.0,
		},
		StructRef: &Nested{
			Bool:   true,
			String: "string",
			Number: 42.0,
		},
	}

	b, err := c.MarshalEvent(ctx, event)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if expectedBytes != nil && string(b) != string(expectedBytes) {
		t.Error("the encoded bytes should be correct:", string(b))
	}

	// Unmarshaling.
	decodedEvent, decodedContext, err := c.UnmarshalEvent(context.Background(), b)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if !reflect.DeepEqual(decodedEvent, event) {
		t.Errorf("the decoded event was incorrect: %#v", decodedEvent)
	}

	if val, ok := mocks.ContextOne(decodedContext); !ok || val != "testval" {
		t.Error("the decoded context was incorrect:", decodedContext)
	}

	// Truncated input.
	if _, _, err := c.UnmarshalEvent(context.Background(), b[:len(b)/2]); err == nil {
		t.Error("there should be an error for truncated bytes")
	}
}

// Event is a mocked integration event, useful in testing.
type Event struct {
	ID         uuid.UUID
	Bool       bool
	String     string
	Number     float64
	Slice      []string
	Map        map[string]interface{}
	Time       time.Time
	TimeRef    *time.Time
	NullTime   *time.Time
	Struct     Nested
	StructRef  *Nested
	NullStruct *Nested
}

// NotificationType implements the NotificationType method of the mediator.Notification interface.
func (e *Event) NotificationType() med.NotificationType { return EventType }

// EventID implements the EventID method of the mediator.IntegrationEvent interface.
func (e *Event) EventID() uuid.UUID { return e.ID }

// Nested is nested event data.
type Nested struct {
	Bool   bool
	String string
	Number float64
}

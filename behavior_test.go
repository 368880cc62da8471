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
	"reflect"
	"testing"

	"github.com/looplab/mediator/uuid"
)

type testRequest struct {
	Name string
}

func (r testRequest) RequestType() RequestType { return "test" }

func kindsOf(bs []Behavior) []BehaviorKind {
	var kinds []BehaviorKind
	for _, b := range bs {
		kinds = append(kinds, b.BehaviorKind())
	}

	return kinds
}

func TestPipelineOrderSort(t *testing.T) {
	bs := []Behavior{
		BehaviorFunc{Kind: "x"},
		BehaviorFunc{Kind: BehaviorRetry},
		BehaviorFunc{Kind: "y"},
		BehaviorFunc{Kind: BehaviorLogging},
	}

	sorted := DefaultPipelineOrder().Sort(bs)
	expected := []BehaviorKind{BehaviorLogging, BehaviorRetry, "x", "y"}

	if !reflect.DeepEqual(kindsOf(sorted), expected) {
		t.Error("the behaviors should be sorted:", kindsOf(sorted))
	}

	if bs[0].BehaviorKind() != "x" {
		t.Error("the input should not be modified")
	}

	var nilOrder PipelineOrder
	if !reflect.DeepEqual(kindsOf(nilOrder.Sort(bs)), kindsOf(bs)) {
		t.Error("a nil order should keep the registration order")
	}
}

func TestChain(t *testing.T) {
	var hits []string

	probe := func(name string) Behavior {
		return BehaviorFunc{Kind: BehaviorKind(name), Func: func(ctx context.Context, req Request, next Next) (interface{}, error) {
			hits = append(hits, name)
			resp, err := next(ctx)
			hits = append(hits, name+"-post")

			return resp, err
		}}
	}

	terminal := func(ctx context.Context) (interface{}, error) {
		hits = append(hits, "handler")
		return 42, nil
	}

	resp, err := Chain(testRequest{}, terminal, probe("B1"), probe("B2"))(context.Background())
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if resp != 42 {
		t.Error("the response should be correct:", resp)
	}

	expected := []string{"B1", "B2", "handler", "B2-post", "B1-post"}
	if !reflect.DeepEqual(hits, expected) {
		t.Error("the order should be correct:", hits)
	}
}

func TestCheckRequest(t *testing.T) {
	type request struct {
		testRequest
		ID       uuid.UUID
		Hash     [4]byte
		Content  string
		Optional string `mediator:"optional"`
		Count    int
		private  string
	}

	errs := CheckRequest(request{testRequest: testRequest{Name: "n"}})
	// Byte arrays other than UUIDs are value types and never missing.
	expected := []RequestFieldError{{"ID"}, {"Content"}}

	if !reflect.DeepEqual(errs, expected) {
		t.Error("the missing fields should be reported:", errs)
	}

	errs = CheckRequest(&request{testRequest: testRequest{Name: "n"}, ID: uuid.New(), Content: "c"})
	if len(errs) != 0 {
		t.Error("there should be no missing fields:", errs)
	}
}

func TestEventBuffer(t *testing.T) {
	var b EventBuffer

	b.RaiseDomainEvent(testEvent("d1"))
	b.RaiseDomainEvent(testEvent("d2"))

	if len(b.DomainEvents()) != 2 || b.DomainEvents()[1] != testEvent("d2") {
		t.Error("the events should be buffered in order:", b.DomainEvents())
	}

	b.ClearEvents()

	if len(b.DomainEvents()) != 0 || len(b.IntegrationEvents()) != 0 {
		t.Error("the buffer should be cleared")
	}
}

type testEvent string

func (e testEvent) NotificationType() NotificationType { return "testEvent" }

func TestCreateIntegrationEvent(t *testing.T) {
	if _, err := CreateIntegrationEvent("unknown"); err != ErrIntegrationEventNotRegistered {
		t.Error("there should be a not registered error:", err)
	}
}

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

package validation

import (
	"context"
	"errors"
	"reflect"
	"testing"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/uuid"
)

type validatedRequest struct {
	mocks.Request
	msgs []string
}

func (r validatedRequest) Validate() []string { return r.msgs }

func TestBehavior_SelfValidating(t *testing.T) {
	b := NewBehavior()

	if b.BehaviorKind() != med.BehaviorValidation {
		t.Error("the kind should be correct:", b.BehaviorKind())
	}

	var called bool
	next := func(ctx context.Context) (interface{}, error) {
		called = true
		return "response", nil
	}

	// Requests without a validation method pass.
	if _, err := b.Handle(context.Background(), mocks.Request{}, next); err != nil {
		t.Error("there should be no error:", err)
	}

	if !called {
		t.Error("the pipeline should continue")
	}

	called = false
	_, err := b.Handle(context.Background(), validatedRequest{msgs: []string{"invalid name"}}, next)

	var validationErr *med.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatal("there should be a validation error:", err)
	}

	if !reflect.DeepEqual(validationErr.Messages, []string{"invalid name"}) {
		t.Error("the messages should be correct:", validationErr.Messages)
	}

	if called {
		t.Error("the pipeline should not continue")
	}
}

func TestBehavior_RequiredFields(t *testing.T) {
	b := NewBehavior(RequiredFields(), ValidatorFunc(func(ctx context.Context, req med.Request) []string {
		return []string{"custom"}
	}))

	next := func(ctx context.Context) (interface{}, error) {
		return nil, nil
	}

	_, err := b.Handle(context.Background(), mocks.Request{}, next)

	var validationErr *med.ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatal("there should be a validation error:", err)
	}

	expected := []string{"missing field: ID", "missing field: Content", "custom"}
	if !reflect.DeepEqual(validationErr.Messages, expected) {
		t.Error("the messages should be correct:", validationErr.Messages)
	}

	b = NewBehavior(RequiredFields())
	if _, err := b.Handle(context.Background(), mocks.Request{ID: uuid.New(), Content: "c"}, next); err != nil {
		t.Error("there should be no error:", err)
	}

	// Optional fields may be empty.
	if _, err := b.Handle(context.Background(), mocks.RequestOther{}, next); err != nil {
		t.Error("there should be no error:", err)
	}
}

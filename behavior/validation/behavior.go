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

// Package validation provides a behavior that validates requests before they
// are handled.
package validation

import (
	"context"

	med "github.com/looplab/mediator"
)

// Validator validates a request and returns the validation messages, empty if
// the request is valid.
type Validator interface {
	Validate(context.Context, med.Request) []string
}

// ValidatorFunc is a function that can be used as a validator.
type ValidatorFunc func(context.Context, med.Request) []string

// Validate implements the Validate method of the Validator interface.
func (f ValidatorFunc) Validate(ctx context.Context, req med.Request) []string {
	return f(ctx, req)
}

// Request is a request with its own validation method.
type Request interface {
	med.Request

	// Validate returns the validation messages of the request.
	Validate() []string
}

// SelfValidating validates requests with their own validation method;
// `Validate() []string`. Requests without the method are valid.
func SelfValidating() Validator {
	return ValidatorFunc(func(ctx context.Context, req med.Request) []string {
		if r, ok := req.(Request); ok {
			return r.Validate()
		}

		return nil
	})
}

// RequiredFields validates that all public fields of the request are set,
// except fields tagged with `mediator:"optional"`.
func RequiredFields() Validator {
	return ValidatorFunc(func(ctx context.Context, req med.Request) []string {
		var msgs []string
		for _, err := range med.CheckRequest(req) {
			msgs = append(msgs, err.Error())
		}

		return msgs
	})
}

// Chain runs all validators and returns all their messages.
func Chain(validators ...Validator) Validator {
	return ValidatorFunc(func(ctx context.Context, req med.Request) []string {
		var msgs []string
		for _, v := range validators {
			msgs = append(msgs, v.Validate(ctx, req)...)
		}

		return msgs
	})
}

// Behavior fails requests that do not pass validation with a
// *mediator.ValidationError, without calling the rest of the pipeline.
type Behavior struct {
	validator Validator
}

// NewBehavior creates a new validation Behavior running the validators in
// order. Without validators requests are validated by SelfValidating.
func NewBehavior(validators ...Validator) *Behavior {
	if len(validators) == 0 {
		validators = []Validator{SelfValidating()}
	}

	return &Behavior{validator: Chain(validators...)}
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorValidation
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	if msgs := b.validator.Validate(ctx, req); len(msgs) > 0 {
		return nil, &med.ValidationError{Messages: msgs}
	}

	return next(ctx)
}

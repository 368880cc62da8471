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
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoHandler is when no handler is registered for a request.
	ErrNoHandler = errors.New("no handler registered")
	// ErrAmbiguousHandler is when more than one handler is registered for a request.
	ErrAmbiguousHandler = errors.New("ambiguous handler registration")
	// ErrMissingHandler is when a nil handler is registered.
	ErrMissingHandler = errors.New("missing handler")
	// ErrMissingMatcher is when a nil matcher is used.
	ErrMissingMatcher = errors.New("missing matcher")
	// ErrMissingBehavior is when a nil behavior is registered.
	ErrMissingBehavior = errors.New("missing behavior")
	// ErrMissingProcessor is when a nil pre- or post-processor is registered.
	ErrMissingProcessor = errors.New("missing processor")
	// ErrMissingRequest is when a nil request is sent.
	ErrMissingRequest = errors.New("missing request")
	// ErrInvalidRequest is when a handler receives a request of the wrong type.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidNotification is when a handler receives a notification of the wrong type.
	ErrInvalidNotification = errors.New("invalid notification")
	// ErrMissingNotification is when a nil notification is published.
	ErrMissingNotification = errors.New("missing notification")
	// ErrNoIntegrationTarget is when integration events were raised but neither
	// a publisher nor an outbox store is configured.
	ErrNoIntegrationTarget = errors.New("no integration publisher or outbox store configured")
)

// NoHandlerError is returned when dispatching a request without a handler.
type NoHandlerError struct {
	RequestType RequestType
}

// Error implements the Error method of the errors.Error interface.
func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("%s: %s", ErrNoHandler, e.RequestType)
}

// Unwrap implements the errors.Unwrap method.
func (e *NoHandlerError) Unwrap() error {
	return ErrNoHandler
}

// AmbiguousHandlerError is returned when dispatching a request with more than
// one handler.
type AmbiguousHandlerError struct {
	RequestType RequestType
	Count       int
}

// Error implements the Error method of the errors.Error interface.
func (e *AmbiguousHandlerError) Error() string {
	return fmt.Sprintf("%s: %s has %d handlers", ErrAmbiguousHandler, e.RequestType, e.Count)
}

// Unwrap implements the errors.Unwrap method.
func (e *AmbiguousHandlerError) Unwrap() error {
	return ErrAmbiguousHandler
}

// ValidationError is returned when a request fails validation.
type ValidationError struct {
	Messages []string
}

// Error implements the Error method of the errors.Error interface.
func (e *ValidationError) Error() string {
	return "invalid request: " + strings.Join(e.Messages, "; ")
}

// ResponseTypeError is returned when a response is not of the expected type.
type ResponseTypeError struct {
	RequestType RequestType
	Response    interface{}
}

// Error implements the Error method of the errors.Error interface.
func (e *ResponseTypeError) Error() string {
	return fmt.Sprintf("unexpected response type for %s: %T", e.RequestType, e.Response)
}

// PublishError is an error when publishing an integration event.
type PublishError struct {
	// Err is the error.
	Err error
	// Event is the event that could not be published.
	Event IntegrationEvent
}

// Error implements the Error method of the errors.Error interface.
func (e *PublishError) Error() string {
	str := "could not publish integration event: "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.Event != nil {
		str += fmt.Sprintf(" [%s(%s)]", e.Event.NotificationType(), e.Event.EventID())
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *PublishError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors Unwrap method.
func (e *PublishError) Cause() error {
	return e.Unwrap()
}

// Transaction operations, used in TransactionError.
const (
	TransactionOpBegin    = "begin"
	TransactionOpCommit   = "commit"
	TransactionOpRollback = "rollback"
)

// TransactionError is an error in a transaction operation.
type TransactionError struct {
	// Op is the failed operation.
	Op string
	// Err is the error.
	Err error
}

// Error implements the Error method of the errors.Error interface.
func (e *TransactionError) Error() string {
	str := "could not " + e.Op + " transaction: "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *TransactionError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors Unwrap method.
func (e *TransactionError) Cause() error {
	return e.Unwrap()
}

// OutboxError is an error in the outbox.
type OutboxError struct {
	// Err is the error.
	Err error
	// Ctx is the context used when the error happened.
	Ctx context.Context
	// Event is the event handled when the error happened.
	Event IntegrationEvent
}

// Error implements the Error method of the errors.Error interface.
func (e *OutboxError) Error() string {
	str := "outbox: "

	if e.Err != nil {
		str += e.Err.Error()
	} else {
		str += "unknown error"
	}

	if e.Event != nil {
		str += fmt.Sprintf(" [%s(%s)]", e.Event.NotificationType(), e.Event.EventID())
	}

	return str
}

// Unwrap implements the errors.Unwrap method.
func (e *OutboxError) Unwrap() error {
	return e.Err
}

// Cause implements the github.com/pkg/errors Unwrap method.
func (e *OutboxError) Cause() error {
	return e.Unwrap()
}

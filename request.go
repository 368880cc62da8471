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
	"fmt"
)

// RequestType is the type of a request, used as its unique identifier.
type RequestType string

// String returns the string representation of a request type.
func (rt RequestType) String() string {
	return string(rt)
}

// Request is a value that is dispatched to exactly one handler. Whether it
// produces a response or not is decided by how its handler is registered.
type Request interface {
	// RequestType returns the type of the request.
	RequestType() RequestType
}

// RequestHandler is an interface that all handlers of requests must implement.
// Void handlers return Unit as their response.
type RequestHandler interface {
	// HandleRequest handles a request.
	HandleRequest(context.Context, Request) (interface{}, error)
}

// RequestHandlerFunc is a function that can be used as a request handler.
type RequestHandlerFunc func(context.Context, Request) (interface{}, error)

// HandleRequest implements the HandleRequest method of the RequestHandler.
func (h RequestHandlerFunc) HandleRequest(ctx context.Context, req Request) (interface{}, error) {
	return h(ctx, req)
}

// Unit is the response placeholder threaded through the pipeline for void
// requests.
type Unit struct{}

// HandlerFunc adapts a typed handler func into a RequestHandler.
func HandlerFunc[Q Request, R any](f func(context.Context, Q) (R, error)) RequestHandler {
	return RequestHandlerFunc(func(ctx context.Context, req Request) (interface{}, error) {
		q, ok := req.(Q)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrInvalidRequest, req)
		}

		return f(ctx, q)
	})
}

// VoidHandlerFunc adapts a typed handler func without response into a
// RequestHandler.
func VoidHandlerFunc[Q Request](f func(context.Context, Q) error) RequestHandler {
	return RequestHandlerFunc(func(ctx context.Context, req Request) (interface{}, error) {
		q, ok := req.(Q)
		if !ok {
			return nil, fmt.Errorf("%w: %T", ErrInvalidRequest, req)
		}

		if err := f(ctx, q); err != nil {
			return nil, err
		}

		return Unit{}, nil
	})
}

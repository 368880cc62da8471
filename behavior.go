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
	"sort"
)

// BehaviorKind identifies a kind of behavior, used to order the pipeline.
type BehaviorKind string

// String returns the string representation of a behavior kind.
func (k BehaviorKind) String() string {
	return string(k)
}

// Kinds of the standard behaviors.
const (
	BehaviorLogging       BehaviorKind = "logging"
	BehaviorValidation    BehaviorKind = "validation"
	BehaviorPerformance   BehaviorKind = "performance"
	BehaviorRetry         BehaviorKind = "retry"
	BehaviorCaching       BehaviorKind = "caching"
	BehaviorTransactional BehaviorKind = "transactional"
	BehaviorDomainEvents  BehaviorKind = "domain_events"
	BehaviorTracing       BehaviorKind = "tracing"
	BehaviorLock          BehaviorKind = "lock"
)

// Next invokes the rest of the pipeline.
type Next func(context.Context) (interface{}, error)

// Behavior is a middleware unit wrapping the handling of a request.
type Behavior interface {
	// BehaviorKind returns the kind of the behavior.
	BehaviorKind() BehaviorKind
	// Handle handles the request, calling next to continue the pipeline.
	Handle(ctx context.Context, req Request, next Next) (interface{}, error)
}

// BehaviorFunc is a function that can be used as a behavior of a given kind.
type BehaviorFunc struct {
	Kind BehaviorKind
	Func func(context.Context, Request, Next) (interface{}, error)
}

// BehaviorKind implements the BehaviorKind method of the Behavior interface.
func (b BehaviorFunc) BehaviorKind() BehaviorKind {
	return b.Kind
}

// Handle implements the Handle method of the Behavior interface.
func (b BehaviorFunc) Handle(ctx context.Context, req Request, next Next) (interface{}, error) {
	return b.Func(ctx, req, next)
}

// PipelineOrder is the configured order of behavior kinds, outermost first.
type PipelineOrder []BehaviorKind

// DefaultPipelineOrder returns the default order of the standard behaviors.
func DefaultPipelineOrder() PipelineOrder {
	return PipelineOrder{
		BehaviorLogging,
		BehaviorValidation,
		BehaviorPerformance,
		BehaviorRetry,
		BehaviorCaching,
	}
}

// Index returns the position of a kind in the order, or -1 if not listed.
func (o PipelineOrder) Index(kind BehaviorKind) int {
	for i, k := range o {
		if k == kind {
			return i
		}
	}

	return -1
}

// Sort returns the behaviors sorted by the order. Unlisted kinds are placed
// after all listed ones, keeping their relative order. A nil order keeps the
// registration order.
func (o PipelineOrder) Sort(behaviors []Behavior) []Behavior {
	sorted := make([]Behavior, len(behaviors))
	copy(sorted, behaviors)

	if o == nil {
		return sorted
	}

	rank := func(b Behavior) int {
		if i := o.Index(b.BehaviorKind()); i >= 0 {
			return i
		}

		return len(o)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return rank(sorted[i]) < rank(sorted[j])
	})

	return sorted
}

// Chain folds the behaviors right to left around the terminal continuation,
// making the first behavior the outermost.
func Chain(req Request, terminal Next, behaviors ...Behavior) Next {
	next := terminal

	for i := len(behaviors) - 1; i >= 0; i-- {
		b, inner := behaviors[i], next
		next = func(ctx context.Context) (interface{}, error) {
			return b.Handle(ctx, req, inner)
		}
	}

	return next
}

// Copyright (c) 2017 - The Event Horizon authors.
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

package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/mocktracer"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
)

func TestBehavior(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	b := NewBehavior()
	if b.BehaviorKind() != med.BehaviorTracing {
		t.Error("the kind should be correct:", b.BehaviorKind())
	}

	handlerErr := errors.New("handler error")

	var inner opentracing.Span
	if _, err := b.Handle(context.Background(), mocks.Request{}, func(ctx context.Context) (interface{}, error) {
		inner = opentracing.SpanFromContext(ctx)

		return nil, handlerErr
	}); err != handlerErr {
		t.Error("the error should be returned unmodified:", err)
	}

	if inner == nil {
		t.Error("the pipeline should run in a span")
	}

	spans := tracer.FinishedSpans()
	if len(spans) != 1 {
		t.Fatal("there should be one span:", len(spans))
	}

	if spans[0].OperationName != "Request(Request)" {
		t.Error("the operation name should be correct:", spans[0].OperationName)
	}

	if spans[0].Tag("mediator.request_type") != "Request" {
		t.Error("the request type should be tagged:", spans[0].Tags())
	}

	if spans[0].Tag("error") != true {
		t.Error("the error should be tagged:", spans[0].Tags())
	}
}

func TestNotificationHandlerMiddleware(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	inner := mocks.NewNotificationHandler()
	h := med.UseNotificationHandlerMiddleware(inner, NewNotificationHandlerMiddleware())

	e := mocks.NewIntegrationEvent("content")
	if err := h.HandleNotification(context.Background(), e); err != nil {
		t.Error("there should be no error:", err)
	}

	if len(inner.Notifications) != 1 {
		t.Error("the inner handler should be called:", inner.Notifications)
	}

	spans := tracer.FinishedSpans()
	if len(spans) != 1 {
		t.Fatal("there should be one span:", len(spans))
	}

	if spans[0].OperationName != "Notification(IntegrationEvent)" {
		t.Error("the operation name should be correct:", spans[0].OperationName)
	}

	if spans[0].Tag("mediator.event_id") != e.ID.String() {
		t.Error("the event ID should be tagged:", spans[0].Tags())
	}
}

func TestPublisher(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	inner := &mocks.Publisher{}
	p := NewPublisher(inner)

	e := mocks.NewIntegrationEvent("content")
	if err := p.PublishIntegrationEvent(context.Background(), e); err != nil {
		t.Error("there should be no error:", err)
	}

	if len(inner.Published()) != 1 {
		t.Error("the event should be published:", inner.Published())
	}

	spans := tracer.FinishedSpans()
	if len(spans) != 1 {
		t.Fatal("there should be one span:", len(spans))
	}

	if spans[0].OperationName != "Publish(IntegrationEvent)" {
		t.Error("the operation name should be correct:", spans[0].OperationName)
	}
}

func TestContextPropagation(t *testing.T) {
	tracer := mocktracer.New()
	opentracing.SetGlobalTracer(tracer)
	defer opentracing.SetGlobalTracer(opentracing.NoopTracer{})

	RegisterContext()

	sp, ctx := opentracing.StartSpanFromContext(context.Background(), "parent")
	defer sp.Finish()

	vals := med.MarshalContext(ctx)
	if _, ok := vals[tracingSpanKeyStr]; !ok {
		t.Fatal("the span should be marshaled:", vals)
	}

	ctx = med.UnmarshalContext(context.Background(), vals)

	child, ok := opentracing.SpanFromContext(ctx).(*mocktracer.MockSpan)
	if !ok {
		t.Fatal("there should be a span in the context")
	}

	if child.ParentID != sp.(*mocktracer.MockSpan).SpanContext.SpanID {
		t.Error("the span should be a child of the marshaled span:", child.ParentID)
	}
}

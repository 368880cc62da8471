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

package dispatcher

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/registry"
	"github.com/looplab/mediator/uuid"
)

func TestNewDispatcher(t *testing.T) {
	if _, err := NewDispatcher(nil); !errors.Is(err, ErrMissingResolver) {
		t.Error("there should be a missing resolver error:", err)
	}

	r, _ := registry.NewRegistry()

	if _, err := NewDispatcher(r, WithLogger(nil)); err == nil {
		t.Error("there should be an error for a nil logger")
	}

	d, err := NewDispatcher(r)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if !reflect.DeepEqual(d.order, med.DefaultPipelineOrder()) {
		t.Error("the default pipeline order should be used:", d.order)
	}
}

func TestDispatcher_Send(t *testing.T) {
	r, _ := registry.NewRegistry()
	h := &mocks.RequestHandler{Response: "response"}
	if err := r.AddHandler(mocks.RequestType, h); err != nil {
		t.Fatal("there should be no error:", err)
	}

	d, err := NewDispatcher(r)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	req := mocks.Request{ID: uuid.New(), Content: "content"}

	resp, err := d.Send(context.Background(), req)
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if resp != "response" {
		t.Error("the response should be unmodified:", resp)
	}

	if !reflect.DeepEqual(h.Requests, []med.Request{req}) {
		t.Error("the handler should have been called once with the request:", h.Requests)
	}

	if _, err := d.Send(context.Background(), nil); !errors.Is(err, med.ErrMissingRequest) {
		t.Error("there should be a missing request error:", err)
	}
}

func TestDispatcher_SendResolution(t *testing.T) {
	r, _ := registry.NewRegistry()

	var ran bool
	probe := med.BehaviorFunc{Kind: med.BehaviorLogging, Func: func(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
		ran = true
		return next(ctx)
	}}
	if err := r.AddBehavior(med.MatchAny(), probe); err != nil {
		t.Fatal("there should be no error:", err)
	}

	d, _ := NewDispatcher(r)

	_, err := d.Send(context.Background(), mocks.Request{})
	var noHandlerErr *med.NoHandlerError
	if !errors.As(err, &noHandlerErr) || !errors.Is(err, med.ErrNoHandler) {
		t.Error("there should be a no handler error:", err)
	}

	r.AddHandler(mocks.RequestType, &mocks.RequestHandler{})
	r.AddHandler(mocks.RequestType, &mocks.RequestHandler{})

	_, err = d.Send(context.Background(), mocks.Request{})
	var ambiguousErr *med.AmbiguousHandlerError
	if !errors.As(err, &ambiguousErr) || !errors.Is(err, med.ErrAmbiguousHandler) {
		t.Error("there should be an ambiguous handler error:", err)
	}

	if ambiguousErr != nil && ambiguousErr.Count != 2 {
		t.Error("the handler count should be correct:", ambiguousErr.Count)
	}

	if ran {
		t.Error("no behavior should run when resolution fails")
	}
}

func TestDispatcher_BehaviorOrder(t *testing.T) {
	var hits []string

	probe := func(name string, kind med.BehaviorKind) med.Behavior {
		return med.BehaviorFunc{Kind: kind, Func: func(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
			hits = append(hits, name)
			resp, err := next(ctx)
			hits = append(hits, name+"-post")

			return resp, err
		}}
	}

	r, _ := registry.NewRegistry()
	r.AddHandler(mocks.RequestType, med.RequestHandlerFunc(func(ctx context.Context, req med.Request) (interface{}, error) {
		hits = append(hits, "handler")
		return nil, nil
	}))

	// Registered in the opposite order of the configuration.
	r.AddBehavior(med.MatchAny(), probe("unlisted1", "unlisted"))
	r.AddBehavior(med.MatchAny(), probe("B2", "b2"))
	r.AddBehavior(med.MatchAny(), probe("unlisted2", "unlisted"))
	r.AddBehavior(med.MatchAny(), probe("B1", "b1"))
	r.AddBehavior(med.MatchRequest(mocks.RequestOtherType), probe("other", "b1"))

	d, _ := NewDispatcher(r, WithPipelineOrder(med.PipelineOrder{"b1", "b2"}))

	if _, err := d.Send(context.Background(), mocks.Request{}); err != nil {
		t.Error("there should be no error:", err)
	}

	assert.Equal(t, []string{
		"B1", "B2", "unlisted1", "unlisted2", "handler",
		"unlisted2-post", "unlisted1-post", "B2-post", "B1-post",
	}, hits)

	// Without an order the registration order is used.
	hits = nil
	d, _ = NewDispatcher(r, WithPipelineOrder(nil))

	if _, err := d.Send(context.Background(), mocks.Request{}); err != nil {
		t.Error("there should be no error:", err)
	}

	assert.Equal(t, []string{
		"unlisted1", "B2", "unlisted2", "B1", "handler",
		"B1-post", "unlisted2-post", "B2-post", "unlisted1-post",
	}, hits)
}

func TestDispatcher_Processors(t *testing.T) {
	var hits []string

	r, _ := registry.NewRegistry()
	r.AddHandler(mocks.RequestType, med.RequestHandlerFunc(func(ctx context.Context, req med.Request) (interface{}, error) {
		hits = append(hits, "handler")
		return "response", nil
	}))
	r.AddPreProcessor(med.MatchAny(), med.PreProcessorFunc(func(ctx context.Context, req med.Request) error {
		hits = append(hits, "pre1")
		return nil
	}))
	r.AddPreProcessor(med.MatchAny(), med.PreProcessorFunc(func(ctx context.Context, req med.Request) error {
		hits = append(hits, "pre2")
		return nil
	}))

	var postResp interface{}
	r.AddPostProcessor(med.MatchAny(), med.PostProcessorFunc(func(ctx context.Context, req med.Request, resp interface{}) error {
		hits = append(hits, "post")
		postResp = resp

		return nil
	}))

	d, _ := NewDispatcher(r)

	if _, err := d.Send(context.Background(), mocks.Request{}); err != nil {
		t.Error("there should be no error:", err)
	}

	assert.Equal(t, []string{"pre1", "pre2", "handler", "post"}, hits)
	assert.Equal(t, "response", postResp)

	// A failing pre-processor aborts before the handler.
	preErr := errors.New("pre error")
	r.AddPreProcessor(med.MatchAny(), med.PreProcessorFunc(func(ctx context.Context, req med.Request) error {
		return preErr
	}))

	hits = nil
	if _, err := d.Send(context.Background(), mocks.Request{}); !errors.Is(err, preErr) {
		t.Error("there should be a pre-processor error:", err)
	}

	assert.Equal(t, []string{"pre1", "pre2"}, hits)
}

func TestDispatcher_PostProcessorError(t *testing.T) {
	r, _ := registry.NewRegistry()
	r.AddHandler(mocks.RequestType, &mocks.RequestHandler{Response: "response"})

	postErr := errors.New("post error")
	r.AddPostProcessor(med.MatchAny(), med.PostProcessorFunc(func(ctx context.Context, req med.Request, resp interface{}) error {
		return postErr
	}))

	d, _ := NewDispatcher(r)

	resp, err := d.Send(context.Background(), mocks.Request{})
	if !errors.Is(err, postErr) {
		t.Error("there should be a post-processor error:", err)
	}

	if resp != nil {
		t.Error("the response should not be returned:", resp)
	}
}

func TestDispatcher_SendVoid(t *testing.T) {
	r, _ := registry.NewRegistry()

	var handled mocks.Request
	if err := registry.HandleVoid(r, mocks.RequestType, func(ctx context.Context, req mocks.Request) error {
		handled = req
		return nil
	}); err != nil {
		t.Fatal("there should be no error:", err)
	}

	var resp interface{}
	r.AddBehavior(med.MatchAny(), med.BehaviorFunc{Kind: med.BehaviorLogging, Func: func(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
		var err error
		resp, err = next(ctx)

		return resp, err
	}})

	d, _ := NewDispatcher(r)

	req := mocks.Request{ID: uuid.New()}
	if err := med.Execute(context.Background(), d, req); err != nil {
		t.Error("there should be no error:", err)
	}

	if handled != req {
		t.Error("the void handler should have been called:", handled)
	}

	if resp != (med.Unit{}) {
		t.Error("the unit placeholder should be threaded through behaviors:", resp)
	}

	// Value handlers are resolved separately.
	if _, err := d.Send(context.Background(), req); !errors.Is(err, med.ErrNoHandler) {
		t.Error("there should be a no handler error:", err)
	}
}

func TestDispatcher_TypedSend(t *testing.T) {
	r, _ := registry.NewRegistry()
	registry.Handle(r, mocks.RequestType, func(ctx context.Context, req mocks.Request) (int, error) {
		return len(req.Content), nil
	})

	d, _ := NewDispatcher(r)

	n, err := med.Send[int](context.Background(), d, mocks.Request{Content: "abc"})
	if err != nil {
		t.Error("there should be no error:", err)
	}

	if n != 3 {
		t.Error("the response should be correct:", n)
	}

	_, err = med.Send[string](context.Background(), d, mocks.Request{Content: "abc"})
	var typeErr *med.ResponseTypeError
	if !errors.As(err, &typeErr) {
		t.Error("there should be a response type error:", err)
	}
}

func TestDispatcher_Cancelled(t *testing.T) {
	r, _ := registry.NewRegistry()
	h := &mocks.RequestHandler{}
	r.AddHandler(mocks.RequestType, h)

	d, _ := NewDispatcher(r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := d.Send(ctx, mocks.Request{}); !errors.Is(err, context.Canceled) {
		t.Error("there should be a canceled error:", err)
	}

	if len(h.Requests) != 0 {
		t.Error("the handler should not be called")
	}

	if err := d.Publish(ctx, mocks.DomainEvent{}); !errors.Is(err, context.Canceled) {
		t.Error("there should be a canceled error:", err)
	}
}

func TestDispatcher_Publish(t *testing.T) {
	r, _ := registry.NewRegistry()

	var hits []string
	handler := func(name string, err error) med.NotificationHandler {
		return med.NotificationHandlerFunc(func(ctx context.Context, n med.Notification) error {
			hits = append(hits, name)
			return err
		})
	}

	r.AddNotificationHandler(mocks.DomainEventType, handler("h1", nil))
	r.AddNotificationHandler(mocks.DomainEventType, handler("h2", nil))
	r.AddNotificationHandler(mocks.IntegrationEventType, handler("other", nil))

	d, _ := NewDispatcher(r)

	if err := d.Publish(context.Background(), mocks.DomainEvent{Content: "event"}); err != nil {
		t.Error("there should be no error:", err)
	}

	assert.Equal(t, []string{"h1", "h2"}, hits)

	// Publishing without handlers is not an error.
	if err := d.Publish(context.Background(), mocks.NewIntegrationEvent("event")); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := d.Publish(context.Background(), nil); !errors.Is(err, med.ErrMissingNotification) {
		t.Error("there should be a missing notification error:", err)
	}
}

func TestDispatcher_PublishAbortsOnError(t *testing.T) {
	r, _ := registry.NewRegistry()

	handlerErr := errors.New("handler error")
	h1 := mocks.NewNotificationHandler()
	h1.Err = handlerErr
	h2 := mocks.NewNotificationHandler()

	r.AddNotificationHandler(mocks.DomainEventType, h1)
	r.AddNotificationHandler(mocks.DomainEventType, h2)

	d, _ := NewDispatcher(r)

	if err := d.Publish(context.Background(), mocks.DomainEvent{}); !errors.Is(err, handlerErr) {
		t.Error("there should be a handler error:", err)
	}

	if len(h2.Notifications) != 0 {
		t.Error("the second handler should not be called")
	}
}

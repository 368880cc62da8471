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

package domainevents

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/collector"
	"github.com/looplab/mediator/dispatcher"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/registry"
	"github.com/looplab/mediator/uuid"
)

func setup(t *testing.T, handleErr error, options ...Option) (*dispatcher.Dispatcher, *registry.Registry, *mocks.Aggregate) {
	t.Helper()

	r, err := registry.NewRegistry()
	require.NoError(t, err)

	d, err := dispatcher.NewDispatcher(r)
	require.NoError(t, err)

	a := &mocks.Aggregate{ID: uuid.New()}

	require.NoError(t, registry.Handle(r, mocks.RequestType, func(ctx context.Context, req mocks.Request) (string, error) {
		collector.Track(ctx, a)
		a.Rename(req.Content)

		return "ok", handleErr
	}))

	b, err := NewBehavior(d, options...)
	require.NoError(t, err)
	require.NoError(t, r.AddBehavior(med.MatchAny(), b))

	return d, r, a
}

func TestNewBehavior(t *testing.T) {
	if _, err := NewBehavior(nil); err != ErrMissingNotificationPublisher {
		t.Error("there should be a missing publisher error:", err)
	}

	if _, err := NewBehavior(&dispatcher.Dispatcher{}, WithLogger(nil)); err == nil {
		t.Error("there should be an error for a nil logger")
	}

	b, err := NewBehavior(&dispatcher.Dispatcher{})
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if b.BehaviorKind() != med.BehaviorDomainEvents {
		t.Error("the kind should be correct:", b.BehaviorKind())
	}
}

func TestBehavior_Dispatch(t *testing.T) {
	pub := &mocks.Publisher{}
	d, r, a := setup(t, nil, WithPublisher(pub))

	h := mocks.NewNotificationHandler()
	require.NoError(t, r.AddNotificationHandler(mocks.DomainEventType, h))

	resp, err := d.Send(context.Background(), mocks.Request{ID: uuid.New(), Content: "name"})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	assert.Equal(t, []med.Notification{mocks.DomainEvent{Content: "name"}}, h.Notifications)
	assert.Len(t, pub.Published(), 1)
	assert.Empty(t, a.DomainEvents())
}

func TestBehavior_HandlerFailureDropsEvents(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	handleErr := errors.New("handler error")
	pub := &mocks.Publisher{}
	d, r, a := setup(t, handleErr, WithPublisher(pub), WithLogger(zap.New(core)))

	h := mocks.NewNotificationHandler()
	require.NoError(t, r.AddNotificationHandler(mocks.DomainEventType, h))

	if _, err := d.Send(context.Background(), mocks.Request{ID: uuid.New(), Content: "name"}); err != handleErr {
		t.Error("the handler error should be returned:", err)
	}

	assert.Empty(t, h.Notifications)
	assert.Empty(t, pub.Published())
	assert.Empty(t, a.DomainEvents(), "the events should be discarded")

	entries := logs.FilterMessage("dropped events of failed request").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.EqualValues(t, 1, fields["domain_events"])
		assert.EqualValues(t, 1, fields["integration_events"])
	}
}

func TestBehavior_NoPublisher(t *testing.T) {
	d, _, _ := setup(t, nil)

	if _, err := d.Send(context.Background(), mocks.Request{ID: uuid.New(), Content: "name"}); !errors.Is(err, med.ErrNoIntegrationTarget) {
		t.Error("there should be a no integration target error:", err)
	}
}

func TestBehavior_PublishFailure(t *testing.T) {
	pubErr := errors.New("publish error")
	d, _, _ := setup(t, nil, WithPublisher(&mocks.Publisher{Err: pubErr}))

	_, err := d.Send(context.Background(), mocks.Request{ID: uuid.New(), Content: "name"})

	var publishErr *med.PublishError
	if !errors.As(err, &publishErr) {
		t.Error("there should be a publish error:", err)
	}

	assert.ErrorIs(t, err, pubErr)
}

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

package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/metrics"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/outbox/memory"
	"github.com/looplab/mediator/uuid"
)

func TestNewProcessor(t *testing.T) {
	if _, err := NewProcessor(nil, &mocks.Publisher{}); err != ErrMissingStore {
		t.Error("there should be a missing store error:", err)
	}

	if _, err := NewProcessor(memory.NewStore(), nil); err != ErrMissingPublisher {
		t.Error("there should be a missing publisher error:", err)
	}

	if _, err := NewProcessor(memory.NewStore(), &mocks.Publisher{}, WithInterval(0)); err == nil {
		t.Error("there should be an error for a zero interval")
	}

	p, err := NewProcessor(memory.NewStore(), &mocks.Publisher{})
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if p.interval != DefaultInterval {
		t.Error("the interval should be the default:", p.interval)
	}
}

func TestProcessOnce_Success(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pub := &mocks.Publisher{}

	reg := prometheus.NewRegistry()
	m, err := metrics.NewMetrics(reg)
	require.NoError(t, err)

	p, err := NewProcessor(store, pub, WithMetrics(m))
	require.NoError(t, err)

	for _, c := range []string{"a", "b", "c"} {
		require.NoError(t, store.Save(ctx, mocks.NewIntegrationEvent(c)))
	}

	assert.NoError(t, p.ProcessOnce(ctx))

	pending, err := store.GetPending(ctx)
	assert.NoError(t, err)
	assert.Empty(t, pending)

	published := pub.Published()
	if assert.Len(t, published, 3) {
		for i, c := range []string{"a", "b", "c"} {
			assert.Equal(t, c, published[i].(*mocks.IntegrationEvent).Content)
		}
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.OutboxEvents().WithLabelValues(metrics.OutboxPublished)))

	// Nothing left to publish.
	assert.NoError(t, p.ProcessOnce(ctx))
	assert.Len(t, pub.Published(), 3)
}

func TestProcessOnce_Failure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	pubErr := errors.New("publish error")
	pub := &mocks.Publisher{Err: pubErr}

	p, err := NewProcessor(store, pub)
	require.NoError(t, err)

	for _, c := range []string{"a", "b"} {
		require.NoError(t, store.Save(ctx, mocks.NewIntegrationEvent(c)))
	}

	if err := p.ProcessOnce(ctx); err != nil {
		t.Error("there should be no error:", err)
	}

	pending, _ := store.GetPending(ctx)
	if len(pending) != 2 {
		t.Error("all events should still be pending:", len(pending))
	}

	if pub.Calls != 2 {
		t.Error("each event should be attempted once:", pub.Calls)
	}

	for i := 0; i < 2; i++ {
		select {
		case err := <-p.Errors():
			var outboxErr *med.OutboxError
			if !errors.As(err, &outboxErr) {
				t.Fatal("the error should be an outbox error:", err)
			}

			if !errors.Is(err, pubErr) {
				t.Error("the error should wrap the publish error:", err)
			}

			if outboxErr.Event == nil {
				t.Error("the error should have the event")
			}
		default:
			t.Fatal("there should be an error reported")
		}
	}
}

func TestProcessOnce_PartialFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	e1 := mocks.NewIntegrationEvent("a")
	e2 := mocks.NewIntegrationEvent("b")
	pub := &mocks.Publisher{ErrBy: map[uuid.UUID]error{
		e1.ID: errors.New("publish error"),
	}}

	p, err := NewProcessor(store, pub)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, e1))
	require.NoError(t, store.Save(ctx, e2))

	assert.NoError(t, p.ProcessOnce(ctx))

	pending, _ := store.GetPending(ctx)
	if assert.Len(t, pending, 1) {
		assert.Equal(t, e1.ID, pending[0].EventID())
	}

	// The failed event is retried on the next cycle.
	delete(pub.ErrBy, e1.ID)
	assert.NoError(t, p.ProcessOnce(ctx))

	pending, _ = store.GetPending(ctx)
	assert.Empty(t, pending)
}

func TestProcessOnce_StoreError(t *testing.T) {
	storeErr := errors.New("store error")
	store := &failingStore{OutboxStore: memory.NewStore(), failures: 1, err: storeErr}

	p, err := NewProcessor(store, &mocks.Publisher{})
	require.NoError(t, err)

	if err := p.ProcessOnce(context.Background()); !errors.Is(err, storeErr) {
		t.Error("the store error should be returned:", err)
	}
}

func TestProcessor_LoopSurvivesErrors(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("store error")
	mem := memory.NewStore()
	store := &failingStore{OutboxStore: mem, failures: 2, err: storeErr}
	pub := &mocks.Publisher{}

	p, err := NewProcessor(store, pub, WithInterval(10*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, mem.Save(ctx, mocks.NewIntegrationEvent("a")))

	p.Start()

	assert.Eventually(t, func() bool {
		return len(pub.Published()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.NoError(t, p.Close())

	if n := len(p.Errors()); n != 2 {
		t.Error("the failed cycles should be reported:", n)
	}
}

func TestProcessor_CloseCancelsCycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	started := make(chan struct{})

	pub := med.IntegrationPublisherFunc(func(ctx context.Context, e med.IntegrationEvent) error {
		close(started)
		<-ctx.Done()

		return ctx.Err()
	})

	p, err := NewProcessor(store, pub)
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, mocks.NewIntegrationEvent("a")))

	p.Start()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("the cycle should have started")
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("close should stop the loop promptly")
	}

	pending, _ := store.GetPending(ctx)
	assert.Len(t, pending, 1, "the event should still be pending")
}

func TestProcessor_Run(t *testing.T) {
	store := memory.NewStore()
	pub := &mocks.Publisher{}

	p, err := NewProcessor(store, pub, WithInterval(5*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)

	go func() {
		defer wg.Done()
		p.Run(ctx)
	}()

	require.NoError(t, store.Save(ctx, mocks.NewIntegrationEvent("a")))

	assert.Eventually(t, func() bool {
		return len(pub.Published()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
}

type failingStore struct {
	med.OutboxStore

	mu       sync.Mutex
	failures int
	err      error
}

func (s *failingStore) GetPending(ctx context.Context) ([]med.IntegrationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failures > 0 {
		s.failures--

		return nil, s.err
	}

	return s.OutboxStore.GetPending(ctx)
}

func TestProcessOnce_UnreadableEntry(t *testing.T) {
	ctx := context.Background()
	readErr := errors.New("unknown event type")
	store := &unreadableStore{OutboxStore: memory.NewStore(), err: readErr}
	pub := &mocks.Publisher{}

	p, err := NewProcessor(store, pub)
	require.NoError(t, err)

	e := mocks.NewIntegrationEvent("a")
	require.NoError(t, store.Save(ctx, e))

	// The readable event is delivered even though another entry is not.
	assert.NoError(t, p.ProcessOnce(ctx))

	if assert.Len(t, pub.Published(), 1) {
		assert.Equal(t, e.ID, pub.Published()[0].EventID())
	}

	select {
	case err := <-p.Errors():
		if !errors.Is(err, readErr) {
			t.Error("the read error should be reported:", err)
		}
	case <-time.After(time.Second):
		t.Error("there should be a reported error")
	}
}

func TestProcessOnce_SavedContext(t *testing.T) {
	store := memory.NewStore()

	var got []string

	pub := med.IntegrationPublisherFunc(func(ctx context.Context, e med.IntegrationEvent) error {
		val, _ := mocks.ContextOne(ctx)
		got = append(got, val)

		return nil
	})

	p, err := NewProcessor(store, pub)
	require.NoError(t, err)

	require.NoError(t, store.Save(mocks.WithContextOne(context.Background(), "saved"), mocks.NewIntegrationEvent("a")))

	assert.NoError(t, p.ProcessOnce(context.Background()))
	assert.Equal(t, []string{"saved"}, got)
}

// unreadableStore reports one unreadable entry next to the pending events.
type unreadableStore struct {
	med.OutboxStore

	err error
}

func (s *unreadableStore) GetPending(ctx context.Context) ([]med.IntegrationEvent, error) {
	events, err := s.OutboxStore.GetPending(ctx)
	if err != nil {
		return nil, err
	}

	return events, errors.Join(&med.OutboxError{Err: s.err, Ctx: ctx})
}

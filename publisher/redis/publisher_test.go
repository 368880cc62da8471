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

package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/codec/json"
	"github.com/looplab/mediator/mocks"
	"github.com/looplab/mediator/publisher"
)

func TestPublisher(t *testing.T) {
	s := miniredis.RunT(t)

	p, err := NewPublisher(s.Addr(), "app")
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer p.Close()

	assert.Equal(t, "app_integration_events", p.StreamName())

	codec := &json.EventCodec{}
	next := 0

	publisher.AcceptanceTest(t, p, func(ctx context.Context) (med.IntegrationEvent, context.Context, error) {
		msgs, err := p.Client().XRange(ctx, p.StreamName(), "-", "+").Result()
		if err != nil {
			return nil, nil, fmt.Errorf("could not receive: %w", err)
		}

		if next >= len(msgs) {
			return nil, nil, errors.New("no more messages")
		}

		msg := msgs[next]
		next++

		data, ok := msg.Values[DataKey].(string)
		if !ok {
			return nil, nil, fmt.Errorf("event data is of incorrect type %T", msg.Values[DataKey])
		}

		event, eventCtx, err := codec.UnmarshalEvent(context.Background(), []byte(data))
		if err != nil {
			return nil, nil, err
		}

		if msg.Values[EventIDKey] != event.EventID().String() {
			return nil, nil, fmt.Errorf("incorrect event id field: %v", msg.Values[EventIDKey])
		}

		if msg.Values[EventTypeKey] != event.NotificationType().String() {
			return nil, nil, fmt.Errorf("incorrect event type field: %v", msg.Values[EventTypeKey])
		}

		return event, eventCtx, nil
	}, time.Second)
}

func TestPublisherMaxLen(t *testing.T) {
	s := miniredis.RunT(t)

	p, err := NewPublisher(s.Addr(), "app", WithMaxLen(2))
	require.NoError(t, err)

	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, p.PublishIntegrationEvent(ctx, mocks.NewIntegrationEvent("event")))
	}

	n, err := p.Client().XLen(ctx, p.StreamName()).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, n, int64(5))
	assert.Greater(t, n, int64(0))
}

func TestPublisherServerDown(t *testing.T) {
	s := miniredis.RunT(t)

	p, err := NewPublisher(s.Addr(), "app")
	require.NoError(t, err)

	defer p.Close()

	s.Close()

	err = p.PublishIntegrationEvent(context.Background(), mocks.NewIntegrationEvent("event"))
	assert.Error(t, err, "publishing to a closed server should fail")
}

func TestNewPublisherOptions(t *testing.T) {
	_, err := NewPublisher("127.0.0.1:1", "app", WithMaxAttempts(0))
	assert.Error(t, err)

	_, err = NewPublisher("127.0.0.1:1", "app", WithMaxLen(-1))
	assert.Error(t, err)

	_, err = NewPublisher("", "app",
		WithMaxAttempts(1),
		WithRedisOptions(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond}),
	)
	assert.Error(t, err, "there should be an error without a server")
}

func TestWithCodecMissing(t *testing.T) {
	p := &Publisher{}
	if err := WithCodec(nil)(p); err == nil {
		t.Error("there should be an error for a missing codec")
	}

	if p.codec != nil {
		t.Error("the codec should not be set:", p.codec)
	}
}

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
	"fmt"
	"testing"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/mocks"
)

// Benchmark saves, fetches and publishes b.N events through an outbox store.
// It should manually be called from a benchmark in each implementation.
func Benchmark(b *testing.B, s med.OutboxStore) {
	ctx := context.Background()

	b.Log("num iterations:", b.N)

	events := make([]*mocks.IntegrationEvent, b.N)
	for i := range events {
		events[i] = mocks.NewIntegrationEvent(fmt.Sprintf("event%d", i))
	}

	p := &mocks.Publisher{}

	proc, err := NewProcessor(s, p)
	if err != nil {
		b.Fatal("there should be no error:", err)
	}

	b.Log("setup complete")
	b.ResetTimer()

	for _, e := range events {
		if err := s.Save(ctx, e); err != nil {
			b.Error("could not save event:", err)
		}
	}

	if err := proc.ProcessOnce(ctx); err != nil {
		b.Error("could not process outbox:", err)
	}

	b.StopTimer()

	if len(p.Published()) != b.N {
		b.Error("all events should be published:", len(p.Published()))
	}
}

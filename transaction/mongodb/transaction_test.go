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

package mongodb

import (
	"context"
	"os"
	"testing"

	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/looplab/mediator/mocks"
	outboxMongo "github.com/looplab/mediator/outbox/mongodb"
)

func TestNewTransactionManager(t *testing.T) {
	if _, err := NewTransactionManager(nil); err != ErrMissingClient {
		t.Error("there should be a missing client error:", err)
	}
}

func TestTransactionIntegration(t *testing.T) {
	if testing.Short() || os.Getenv("MEDIATOR_INTEGRATION") == "" {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	uri := os.Getenv("MONGODB_URI")
	if uri == "" {
		container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
		if err != nil {
			t.Fatal("could not start MongoDB:", err)
		}

		defer container.Terminate(ctx)

		if uri, err = container.ConnectionString(ctx); err != nil {
			t.Fatal("could not get connection string:", err)
		}
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatal("could not connect:", err)
	}

	defer client.Disconnect(ctx)

	s, err := outboxMongo.NewStoreWithClient(client, "test-tx")
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer s.Clear(ctx)

	m, err := NewTransactionManager(client)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	// Rolled back.
	txCtx, tx, err := m.Begin(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := s.Save(txCtx, mocks.NewIntegrationEvent("rolled back")); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := tx.Rollback(ctx); err != nil {
		t.Error("there should be no error:", err)
	}

	if pending, _ := s.GetPending(ctx); len(pending) != 0 {
		t.Error("the rolled back event should not be pending:", pending)
	}

	// Committed.
	txCtx, tx, err = m.Begin(ctx)
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	if err := s.Save(txCtx, mocks.NewIntegrationEvent("committed")); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := tx.Commit(txCtx); err != nil {
		t.Error("there should be no error:", err)
	}

	if pending, _ := s.GetPending(ctx); len(pending) != 1 {
		t.Error("the committed event should be pending:", pending)
	}
}

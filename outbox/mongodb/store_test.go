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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"testing"

	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/looplab/mediator/outbox"
)

// mongoURI returns the URI of a MongoDB, from MONGODB_ADDR or a container
// started for the test. Tests are skipped unless MEDIATOR_INTEGRATION is set.
func mongoURI(t testing.TB) string {
	t.Helper()

	if testing.Short() || os.Getenv("MEDIATOR_INTEGRATION") == "" {
		t.Skip("skipping integration test")
	}

	if addr := os.Getenv("MONGODB_ADDR"); addr != "" {
		return "mongodb://" + addr
	}

	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	if err != nil {
		t.Fatal("could not start MongoDB:", err)
	}

	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Error("could not stop MongoDB:", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatal("could not get connection string:", err)
	}

	return uri
}

func dbName(t testing.TB) string {
	// Get a random DB name.
	bs := make([]byte, 4)
	if _, err := rand.Read(bs); err != nil {
		t.Fatal(err)
	}

	db := "test-" + hex.EncodeToString(bs)
	t.Log("using DB:", db)

	return db
}

func TestStoreIntegration(t *testing.T) {
	uri := mongoURI(t)

	s, err := NewStore(uri, dbName(t))
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer s.Close()

	outbox.AcceptanceTest(t, s, context.Background())

	if err := s.Purge(context.Background(), 0); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := s.Clear(context.Background()); err != nil {
		t.Error("there should be no error:", err)
	}
}

func TestWithCollectionNameIntegration(t *testing.T) {
	uri := mongoURI(t)

	s, err := NewStore(uri, dbName(t), WithCollectionName("foo-outbox"))
	if err != nil {
		t.Fatal("there should be no error:", err)
	}

	defer s.Close()

	if s.CollectionName() != "foo-outbox" {
		t.Error("the collection name should be the custom one:", s.CollectionName())
	}
}

func TestWithCollectionNameInvalid(t *testing.T) {
	s := &Store{}

	if err := WithCollectionName("foo outbox")(s); !errors.Is(err, ErrInvalidCharInCollectionName) {
		t.Error("there should be an invalid char error:", err)
	}

	if err := WithCollectionName("")(s); !errors.Is(err, ErrMissingCollectionName) {
		t.Error("there should be a missing name error:", err)
	}
}

func BenchmarkStore(b *testing.B) {
	uri := mongoURI(b)

	s, err := NewStore(uri, dbName(b))
	if err != nil {
		b.Fatal(err)
	}

	defer s.Close()

	outbox.Benchmark(b, s)
}

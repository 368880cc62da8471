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

// Package mongodb provides a mediator.OutboxStore for MongoDB.
//
// Saving with a context from a transaction/mongodb transaction manager makes
// the write part of that transaction.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readconcern"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.mongodb.org/mongo-driver/v2/mongo/writeconcern"

	med "github.com/looplab/mediator"
	bsonCodec "github.com/looplab/mediator/codec/bson"
	"github.com/looplab/mediator/uuid"
)

var (
	// ErrMissingEvent is when saving a nil event.
	ErrMissingEvent = errors.New("missing event")
	// ErrMissingCollectionName is when the collection name is empty.
	ErrMissingCollectionName = errors.New("missing collection name")
	// ErrInvalidCharInCollectionName is when the collection name contains a space.
	ErrInvalidCharInCollectionName = errors.New("invalid char in collection name (space)")
)

// Store implements a mediator.OutboxStore for MongoDB.
type Store struct {
	client          *mongo.Client
	clientOwnership clientOwnership
	db              string
	collectionName  string
	entries         *mongo.Collection
	codec           med.IntegrationEventCodec
}

type clientOwnership int

const (
	internalClient clientOwnership = iota
	externalClient
)

// NewStore creates a new Store with a MongoDB URI: `mongodb://hostname`.
func NewStore(uri, dbName string, options ...Option) (*Store, error) {
	opts := mongoOptions(uri)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("could not connect to DB: %w", err)
	}

	return newStoreWithClient(client, internalClient, dbName, options...)
}

// NewStoreWithClient creates a new Store with a client. To take part in
// transactions the client must be the one used by the transaction manager.
func NewStoreWithClient(client *mongo.Client, dbName string, options ...Option) (*Store, error) {
	return newStoreWithClient(client, externalClient, dbName, options...)
}

func mongoOptions(uri string) *options.ClientOptions {
	return options.Client().
		ApplyURI(uri).
		SetWriteConcern(writeconcern.Majority()).
		SetReadConcern(readconcern.Majority()).
		SetReadPreference(readpref.Primary())
}

func newStoreWithClient(client *mongo.Client, clientOwnership clientOwnership, dbName string, options ...Option) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("missing DB client")
	}

	s := &Store{
		client:          client,
		clientOwnership: clientOwnership,
		db:              dbName,
		collectionName:  "outbox",
		codec:           &bsonCodec.EventCodec{},
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	s.entries = client.Database(dbName).Collection(s.collectionName)

	ctx := context.Background()
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("could not connect to MongoDB: %w", err)
	}

	if _, err := s.entries.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "published_at", Value: 1}, {Key: "seq", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("could not ensure outbox index: %w", err)
	}

	return s, nil
}

// Option is an option setter used to configure creation.
type Option func(*Store) error

// WithCollectionName uses a different collection than the default "outbox".
func WithCollectionName(name string) Option {
	return func(s *Store) error {
		if name == "" {
			return fmt.Errorf("outbox collection: %w", ErrMissingCollectionName)
		} else if strings.ContainsAny(name, " ") {
			return fmt.Errorf("outbox collection: %w", ErrInvalidCharInCollectionName)
		}

		s.collectionName = name

		return nil
	}
}

// WithCodec uses a different codec for the stored events than BSON.
func WithCodec(codec med.IntegrationEventCodec) Option {
	return func(s *Store) error {
		if codec == nil {
			return errors.New("missing codec")
		}

		s.codec = codec

		return nil
	}
}

// CollectionName returns the name of the outbox collection.
func (s *Store) CollectionName() string {
	return s.collectionName
}

// Client returns the MongoDB client used by the store.
func (s *Store) Client() *mongo.Client {
	return s.client
}

// entryDoc is the DB representation of an outbox entry.
type entryDoc struct {
	ID          string     `bson:"_id"`
	EventType   string     `bson:"event_type"`
	Event       []byte     `bson:"event"`
	Seq         int64      `bson:"seq"`
	CreatedAt   time.Time  `bson:"created_at"`
	PublishedAt *time.Time `bson:"published_at"`
}

// Save implements the Save method of the mediator.OutboxStore interface.
func (s *Store) Save(ctx context.Context, event med.IntegrationEvent) error {
	if event == nil {
		return ErrMissingEvent
	}

	b, err := s.codec.MarshalEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("could not marshal event: %w", err)
	}

	now := time.Now()

	// Replace the event but keep the state of a known entry.
	if _, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": event.EventID().String()},
		bson.M{
			"$set": bson.M{
				"event_type": event.NotificationType().String(),
				"event":      b,
			},
			"$setOnInsert": bson.M{
				"seq":          now.UnixNano(),
				"created_at":   now,
				"published_at": nil,
			},
		},
		options.UpdateOne().SetUpsert(true),
	); err != nil {
		return fmt.Errorf("could not save event: %w", err)
	}

	return nil
}

// GetPending implements the GetPending method of the mediator.OutboxStore interface.
func (s *Store) GetPending(ctx context.Context) ([]med.IntegrationEvent, error) {
	pending, err := s.GetPendingWithContext(ctx)

	events := make([]med.IntegrationEvent, 0, len(pending))
	for _, p := range pending {
		events = append(events, p.Event)
	}

	return events, err
}

// GetPendingWithContext implements the GetPendingWithContext method of the
// mediator.PendingContextStore interface.
func (s *Store) GetPendingWithContext(ctx context.Context) ([]med.PendingEvent, error) {
	cur, err := s.entries.Find(ctx,
		bson.M{"published_at": nil},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("could not find pending events: %w", err)
	}

	defer cur.Close(ctx)

	pending := []med.PendingEvent{}

	var errs []error

	for cur.Next(ctx) {
		var doc entryDoc
		if err := cur.Decode(&doc); err != nil {
			errs = append(errs, &med.OutboxError{
				Err: fmt.Errorf("could not decode outbox entry: %w", err),
				Ctx: ctx,
			})

			continue
		}

		event, eventCtx, err := s.codec.UnmarshalEvent(ctx, doc.Event)
		if err != nil {
			errs = append(errs, &med.OutboxError{
				Err: fmt.Errorf("could not unmarshal event %s: %w", doc.ID, err),
				Ctx: ctx,
			})

			continue
		}

		pending = append(pending, med.PendingEvent{Event: event, Ctx: eventCtx})
	}

	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("could not find pending events: %w", err)
	}

	return pending, errors.Join(errs...)
}

// MarkPublished implements the MarkPublished method of the mediator.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if _, err := s.entries.UpdateOne(ctx,
		bson.M{"_id": id.String(), "published_at": nil},
		bson.M{"$set": bson.M{"published_at": time.Now()}},
	); err != nil {
		return fmt.Errorf("could not mark event as published: %w", err)
	}

	return nil
}

// Purge removes published entries older than the age.
func (s *Store) Purge(ctx context.Context, age time.Duration) error {
	if _, err := s.entries.DeleteMany(ctx, bson.M{
		"published_at": bson.M{"$lte": time.Now().Add(-age)},
	}); err != nil {
		return fmt.Errorf("could not purge outbox: %w", err)
	}

	return nil
}

// Clear clears the outbox collection.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.entries.Drop(ctx); err != nil {
		return fmt.Errorf("could not clear outbox: %w", err)
	}

	return nil
}

// Close closes the database client, unless it was provided.
func (s *Store) Close() error {
	if s.clientOwnership == externalClient {
		// Don't close a client we don't own.
		return nil
	}

	return s.client.Disconnect(context.Background())
}

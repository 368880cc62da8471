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

// Package gorm provides a mediator.OutboxStore on gorm, for Postgres.
//
// Saving with a context from a transaction/gorm transaction manager makes the
// write part of that transaction.
package gorm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	med "github.com/looplab/mediator"
	jsonCodec "github.com/looplab/mediator/codec/json"
	gormtx "github.com/looplab/mediator/transaction/gorm"
	"github.com/looplab/mediator/uuid"
)

// ErrMissingEvent is when saving a nil event.
var ErrMissingEvent = errors.New("missing event")

// Store implements a mediator.OutboxStore on gorm.
type Store struct {
	db    *gorm.DB
	table string
	codec med.IntegrationEventCodec
}

// Option is an option setter used to configure creation.
type Option func(*Store) error

// WithTableName uses a different table than the default "outbox".
func WithTableName(name string) Option {
	return func(s *Store) error {
		if name == "" {
			return errors.New("missing table name")
		}

		s.table = name

		return nil
	}
}

// WithCodec uses a different codec for the stored events than JSON.
func WithCodec(codec med.IntegrationEventCodec) Option {
	return func(s *Store) error {
		if codec == nil {
			return errors.New("missing codec")
		}

		s.codec = codec

		return nil
	}
}

// Open opens a Postgres database with a DSN, usable with NewStore and the
// transaction/gorm transaction manager.
func Open(ctx context.Context, dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		PrepareStmt:    true,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("could not connect to DB: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("could not get DB pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()

		return nil, fmt.Errorf("could not ping DB: %w", err)
	}

	return db, nil
}

// NewStore creates a new Store and migrates its table.
func NewStore(ctx context.Context, db *gorm.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, gormtx.ErrMissingDB
	}

	s := &Store{
		db:    db,
		table: "outbox",
		codec: &jsonCodec.EventCodec{},
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, fmt.Errorf("error while applying option: %w", err)
		}
	}

	if err := db.WithContext(ctx).Table(s.table).AutoMigrate(&entryModel{}); err != nil {
		return nil, fmt.Errorf("could not migrate outbox table: %w", err)
	}

	return s, nil
}

// entryModel is the DB representation of an outbox entry.
type entryModel struct {
	ID          string     `gorm:"column:id;type:uuid;primaryKey"`
	Seq         int64      `gorm:"column:seq;autoIncrement;index"`
	EventType   string     `gorm:"column:event_type"`
	Event       []byte     `gorm:"column:event;type:bytea"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	PublishedAt *time.Time `gorm:"column:published_at;index"`
}

func (s *Store) tx(ctx context.Context) *gorm.DB {
	return gormtx.FromContext(ctx, s.db).Table(s.table)
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

	rec := entryModel{
		ID:        event.EventID().String(),
		EventType: event.NotificationType().String(),
		Event:     b,
		CreatedAt: time.Now().UTC(),
	}

	// Replace the event but keep the state of a known entry.
	if err := s.tx(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_type", "event"}),
	}).Create(&rec).Error; err != nil {
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
	var rows []entryModel
	if err := s.tx(ctx).
		Where("published_at IS NULL").
		Order("seq ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("could not find pending events: %w", err)
	}

	pending := make([]med.PendingEvent, 0, len(rows))

	var errs []error

	for _, row := range rows {
		event, eventCtx, err := s.codec.UnmarshalEvent(ctx, row.Event)
		if err != nil {
			errs = append(errs, &med.OutboxError{
				Err: fmt.Errorf("could not unmarshal event %s (%s): %w", row.ID, row.EventType, err),
				Ctx: ctx,
			})

			continue
		}

		pending = append(pending, med.PendingEvent{Event: event, Ctx: eventCtx})
	}

	return pending, errors.Join(errs...)
}

// MarkPublished implements the MarkPublished method of the mediator.OutboxStore interface.
func (s *Store) MarkPublished(ctx context.Context, id uuid.UUID) error {
	if err := s.tx(ctx).
		Where("id = ?", id.String()).
		Where("published_at IS NULL").
		Update("published_at", time.Now().UTC()).Error; err != nil {
		return fmt.Errorf("could not mark event as published: %w", err)
	}

	return nil
}

// Purge removes published entries older than the age.
func (s *Store) Purge(ctx context.Context, age time.Duration) error {
	if err := s.tx(ctx).
		Where("published_at <= ?", time.Now().UTC().Add(-age)).
		Delete(&entryModel{}).Error; err != nil {
		return fmt.Errorf("could not purge outbox: %w", err)
	}

	return nil
}

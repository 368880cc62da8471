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

// Package gorm provides a mediator.TransactionManager for gorm. The
// transaction is carried in the context, stores find it with FromContext.
package gorm

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"gorm.io/gorm"

	med "github.com/looplab/mediator"
)

// ErrMissingDB is when no database is provided.
var ErrMissingDB = errors.New("missing DB")

type txKey struct{}

// FromContext returns the transaction in the context, or the database bound
// to the context if there is none.
func FromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}

	return db.WithContext(ctx)
}

// TransactionManager begins gorm transactions.
type TransactionManager struct {
	db   *gorm.DB
	opts *sql.TxOptions
}

// Option is an option setter used to configure creation.
type Option func(*TransactionManager)

// WithTxOptions sets the isolation level and read only mode of transactions.
func WithTxOptions(opts *sql.TxOptions) Option {
	return func(m *TransactionManager) {
		m.opts = opts
	}
}

// NewTransactionManager creates a new TransactionManager.
func NewTransactionManager(db *gorm.DB, options ...Option) (*TransactionManager, error) {
	if db == nil {
		return nil, ErrMissingDB
	}

	m := &TransactionManager{db: db}
	for _, option := range options {
		option(m)
	}

	return m, nil
}

// Begin implements the Begin method of the mediator.TransactionManager
// interface. Beginning within a transaction joins it, the outermost
// transaction commits.
func (m *TransactionManager) Begin(ctx context.Context) (context.Context, med.Transaction, error) {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return ctx, joined{}, nil
	}

	var tx *gorm.DB
	if m.opts != nil {
		tx = m.db.WithContext(ctx).Begin(m.opts)
	} else {
		tx = m.db.WithContext(ctx).Begin()
	}

	if tx.Error != nil {
		return ctx, nil, tx.Error
	}

	return context.WithValue(ctx, txKey{}, tx), &transaction{tx: tx}, nil
}

type transaction struct {
	mu   sync.Mutex
	tx   *gorm.DB
	done bool
}

// Commit implements the Commit method of the mediator.Transaction interface.
func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.tx.Commit().Error; err != nil {
		return err
	}

	t.done = true

	return nil
}

// Rollback implements the Rollback method of the mediator.Transaction interface.
func (t *transaction) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.done {
		return nil
	}

	t.done = true

	return t.tx.Rollback().Error
}

// joined is a transaction part of an outer one.
type joined struct{}

func (joined) Commit(ctx context.Context) error   { return nil }
func (joined) Rollback(ctx context.Context) error { return nil }

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

// Package mongodb provides a mediator.TransactionManager for MongoDB
// sessions. Operations with the returned context take part in the
// transaction, which requires a replica set.
package mongodb

import (
	"context"
	"errors"
	"sync"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	med "github.com/looplab/mediator"
)

// ErrMissingClient is when no client is provided.
var ErrMissingClient = errors.New("missing DB client")

// TransactionManager begins MongoDB session transactions.
type TransactionManager struct {
	client *mongo.Client
	opts   *options.TransactionOptionsBuilder
}

// Option is an option setter used to configure creation.
type Option func(*TransactionManager)

// WithTransactionOptions sets the options of the transactions.
func WithTransactionOptions(opts *options.TransactionOptionsBuilder) Option {
	return func(m *TransactionManager) {
		m.opts = opts
	}
}

// NewTransactionManager creates a new TransactionManager.
func NewTransactionManager(client *mongo.Client, options ...Option) (*TransactionManager, error) {
	if client == nil {
		return nil, ErrMissingClient
	}

	m := &TransactionManager{client: client}
	for _, option := range options {
		option(m)
	}

	return m, nil
}

// Begin implements the Begin method of the mediator.TransactionManager
// interface. Beginning within a session joins it, the outermost transaction
// commits.
func (m *TransactionManager) Begin(ctx context.Context) (context.Context, med.Transaction, error) {
	if mongo.SessionFromContext(ctx) != nil {
		return ctx, joined{}, nil
	}

	sess, err := m.client.StartSession()
	if err != nil {
		return ctx, nil, err
	}

	var txOpts []options.Lister[options.TransactionOptions]
	if m.opts != nil {
		txOpts = append(txOpts, m.opts)
	}

	if err := sess.StartTransaction(txOpts...); err != nil {
		sess.EndSession(ctx)

		return ctx, nil, err
	}

	return mongo.NewSessionContext(ctx, sess), &transaction{sess: sess}, nil
}

type transaction struct {
	mu   sync.Mutex
	sess *mongo.Session
	done bool
}

// Commit implements the Commit method of the mediator.Transaction interface.
func (t *transaction) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.sess.CommitTransaction(ctx); err != nil {
		return err
	}

	t.done = true
	t.sess.EndSession(ctx)

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
	defer t.sess.EndSession(ctx)

	return t.sess.AbortTransaction(ctx)
}

// joined is a transaction part of an outer one.
type joined struct{}

func (joined) Commit(ctx context.Context) error   { return nil }
func (joined) Rollback(ctx context.Context) error { return nil }

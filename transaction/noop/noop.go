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

// Package noop provides a transaction manager without transactions, for
// handlers with nothing to roll back.
package noop

import (
	"context"

	med "github.com/looplab/mediator"
)

// TransactionManager is a mediator.TransactionManager with no-op transactions.
type TransactionManager struct{}

// NewTransactionManager creates a new TransactionManager.
func NewTransactionManager() *TransactionManager {
	return &TransactionManager{}
}

// Begin implements the Begin method of the mediator.TransactionManager interface.
func (m *TransactionManager) Begin(ctx context.Context) (context.Context, med.Transaction, error) {
	return ctx, transaction{}, nil
}

type transaction struct{}

// Commit implements the Commit method of the mediator.Transaction interface.
func (transaction) Commit(ctx context.Context) error { return nil }

// Rollback implements the Rollback method of the mediator.Transaction interface.
func (transaction) Rollback(ctx context.Context) error { return nil }

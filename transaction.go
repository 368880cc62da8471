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

package mediator

import "context"

// TransactionManager begins transactions on the underlying persistence layer.
type TransactionManager interface {
	// Begin starts a transaction. The returned context carries the transaction
	// so that stores taking part in it can find it.
	Begin(context.Context) (context.Context, Transaction, error)
}

// Transaction is a started transaction. Exactly one of Commit or Rollback is
// expected to be called; calling Rollback after Commit must be a no-op.
type Transaction interface {
	Commit(context.Context) error
	Rollback(context.Context) error
}

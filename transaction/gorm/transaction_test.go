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

package gorm

import (
	"context"
	"testing"
)

func TestNewTransactionManager(t *testing.T) {
	if _, err := NewTransactionManager(nil); err != ErrMissingDB {
		t.Error("there should be a missing DB error:", err)
	}
}

func TestJoinedTransaction(t *testing.T) {
	var tx joined

	if err := tx.Commit(context.Background()); err != nil {
		t.Error("there should be no error:", err)
	}

	if err := tx.Rollback(context.Background()); err != nil {
		t.Error("there should be no error:", err)
	}
}

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

// Package lock provides a behavior that handles only one request per key at
// a time.
package lock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

var (
	// ErrLockExists is returned from Lock() when the lock is already taken.
	ErrLockExists = fmt.Errorf("lock exists")
	// ErrNoLockExists is returned from Unlock() when the lock does not exist.
	ErrNoLockExists = fmt.Errorf("no lock exists")
)

// Lock is a locker of keys.
type Lock interface {
	// Lock sets a lock for the key. Returns ErrLockExists if the lock is already
	// taken or another error if it was not possible to get the lock.
	Lock(key string) error
	// Unlock releases the lock for the key. Returns ErrNoLockExists if there is
	// no lock for the key or another error if it was not possible to unlock.
	Unlock(key string) error
}

// Request is a request that is locked by a key while it is handled, for
// example the ID of the domain object it modifies.
type Request interface {
	med.Request

	LockKey() string
}

// Behavior fails requests whose lock key is already held by a request being
// handled with ErrLockExists. Requests without a lock key pass through.
type Behavior struct {
	lock   Lock
	logger *zap.Logger
}

// NewBehavior returns a new lock behavior using a provided lock implementation.
func NewBehavior(l Lock, logger *zap.Logger) *Behavior {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Behavior{lock: l, logger: logger}
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorLock
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	r, ok := req.(Request)
	if !ok || r.LockKey() == "" {
		return next(ctx)
	}

	key := r.LockKey()
	if err := b.lock.Lock(key); err != nil {
		return nil, err
	}

	defer func() {
		if err := b.lock.Unlock(key); err != nil {
			b.logger.Error("could not unlock request",
				zap.Stringer("request_type", req.RequestType()),
				zap.String("lock_key", key),
				zap.Error(err),
			)
		}
	}()

	return next(ctx)
}

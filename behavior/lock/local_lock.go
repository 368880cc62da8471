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

package lock

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// HeldError is returned by LocalLock.Lock for a key that is already locked.
type HeldError struct {
	Key   string
	Since time.Time
}

// Error implements the Error method of the error interface.
func (e *HeldError) Error() string {
	return fmt.Sprintf("%s: %s held since %s", ErrLockExists, e.Key, e.Since.Format(time.RFC3339Nano))
}

// Unwrap implements the errors.Unwrap method.
func (e *HeldError) Unwrap() error {
	return ErrLockExists
}

// LocalLock keeps the locked keys in the memory of the process. Requests
// with the same key handled by other processes are not excluded.
type LocalLock struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

// NewLocalLock creates a new LocalLock without any held keys.
func NewLocalLock() *LocalLock {
	return &LocalLock{
		held: map[string]time.Time{},
		now:  time.Now,
	}
}

// Lock implements the Lock method of the Lock interface. A taken key fails
// with a *HeldError.
func (l *LocalLock) Lock(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if since, ok := l.held[key]; ok {
		return &HeldError{Key: key, Since: since}
	}

	l.held[key] = l.now()

	return nil
}

// Unlock implements the Unlock method of the Lock interface.
func (l *LocalLock) Unlock(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNoLockExists, key)
	}

	delete(l.held, key)

	return nil
}

// Held returns the locked keys in sorted order.
func (l *LocalLock) Held() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	keys := make([]string, 0, len(l.held))
	for k := range l.held {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

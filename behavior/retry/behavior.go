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

// Package retry provides a behavior that retries failed request handling.
package retry

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

// Defaults of the retry behavior.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 200 * time.Millisecond
)

// Behavior invokes the rest of the pipeline up to a maximum number of
// attempts. Between attempts it waits attempt times the base delay, or the
// next duration of an exponential backoff if one is set. The error of the
// last attempt is returned unmodified.
type Behavior struct {
	maxAttempts int
	baseDelay   time.Duration
	backoff     *backoff.Backoff
	retryable   func(error) bool
	logger      *zap.Logger
}

// Option is an option setter used to configure creation.
type Option func(*Behavior)

// WithMaxAttempts sets the maximum number of attempts, 3 by default.
func WithMaxAttempts(n int) Option {
	return func(b *Behavior) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the base delay of the linear wait, 200ms by default.
func WithBaseDelay(d time.Duration) Option {
	return func(b *Behavior) {
		b.baseDelay = d
	}
}

// WithBackoff waits according to an exponential backoff instead of the
// linear delay. The backoff is used as a template and is never shared
// between requests.
func WithBackoff(bo *backoff.Backoff) Option {
	return func(b *Behavior) {
		b.backoff = bo
	}
}

// WithRetryable sets which errors are retried, all by default.
func WithRetryable(f func(error) bool) Option {
	return func(b *Behavior) {
		b.retryable = f
	}
}

// WithLogger sets the logger of failed attempts.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Behavior) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBehavior creates a new retry Behavior.
func NewBehavior(options ...Option) *Behavior {
	b := &Behavior{
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		retryable:   func(error) bool { return true },
		logger:      zap.NewNop(),
	}

	for _, option := range options {
		option(b)
	}

	return b
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorRetry
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	delay := b.delayFunc()

	for attempt := 1; ; attempt++ {
		resp, err := next(ctx)
		if err == nil {
			return resp, nil
		}

		if attempt >= b.maxAttempts || !b.retryable(err) {
			return resp, err
		}

		wait := delay(attempt)

		b.logger.Warn("request failed, retrying",
			zap.Stringer("request_type", req.RequestType()),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (b *Behavior) delayFunc() func(attempt int) time.Duration {
	if b.backoff == nil {
		return func(attempt int) time.Duration {
			return time.Duration(attempt) * b.baseDelay
		}
	}

	bo := &backoff.Backoff{
		Min:    b.backoff.Min,
		Max:    b.backoff.Max,
		Factor: b.backoff.Factor,
		Jitter: b.backoff.Jitter,
	}

	return func(int) time.Duration {
		return bo.Duration()
	}
}

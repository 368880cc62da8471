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

// Package performance provides a behavior that measures how long requests
// take to handle.
package performance

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

// Behavior measures the wall-clock duration of the rest of the pipeline and
// logs it. It never alters the result.
type Behavior struct {
	logger    *zap.Logger
	observer  prometheus.ObserverVec
	threshold time.Duration
	now       func() time.Time
}

// Option is an option setter used to configure creation.
type Option func(*Behavior)

// WithLogger sets the logger of the durations.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Behavior) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithObserver also observes durations in seconds on a vector labeled with
// "request_type" and "outcome", see metrics.Metrics.RequestDuration.
func WithObserver(observer prometheus.ObserverVec) Option {
	return func(b *Behavior) {
		b.observer = observer
	}
}

// WithThreshold logs requests slower than the threshold as warnings.
func WithThreshold(threshold time.Duration) Option {
	return func(b *Behavior) {
		b.threshold = threshold
	}
}

// NewBehavior creates a new performance Behavior.
func NewBehavior(options ...Option) *Behavior {
	b := &Behavior{
		logger: zap.NewNop(),
		now:    time.Now,
	}

	for _, option := range options {
		option(b)
	}

	return b
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorPerformance
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	start := b.now()
	resp, err := next(ctx)
	elapsed := b.now().Sub(start)

	fields := []zap.Field{
		zap.Stringer("request_type", req.RequestType()),
		zap.Duration("duration", elapsed),
	}

	if b.threshold > 0 && elapsed > b.threshold {
		b.logger.Warn("slow request", fields...)
	} else {
		b.logger.Info("request duration", fields...)
	}

	if b.observer != nil {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}

		b.observer.WithLabelValues(string(req.RequestType()), outcome).Observe(elapsed.Seconds())
	}

	return resp, err
}

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

// Package logging provides a behavior that logs the handling of requests.
package logging

import (
	"context"

	"go.uber.org/zap"

	med "github.com/looplab/mediator"
)

// Behavior logs before and after a request is handled.
type Behavior struct {
	logger *zap.Logger
}

// NewBehavior creates a new logging Behavior. A nil logger disables logging.
func NewBehavior(logger *zap.Logger) *Behavior {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Behavior{logger: logger}
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorLogging
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	logger := b.logger.With(zap.Stringer("request_type", req.RequestType()))

	logger.Info("handling request")

	resp, err := next(ctx)
	if err != nil {
		logger.Error("could not handle request", zap.Error(err))

		return resp, err
	}

	logger.Info("handled request")

	return resp, nil
}

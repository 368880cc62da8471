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

// Package tracing adds opentracing spans to request handling, notification
// handling and integration event publishing.
package tracing

import (
	"context"
	"fmt"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"

	med "github.com/looplab/mediator"
)

// Behavior is a behavior that wraps the rest of the pipeline in a span.
type Behavior struct{}

// NewBehavior creates a new tracing Behavior.
func NewBehavior() *Behavior {
	return &Behavior{}
}

// BehaviorKind implements the BehaviorKind method of the mediator.Behavior interface.
func (b *Behavior) BehaviorKind() med.BehaviorKind {
	return med.BehaviorTracing
}

// Handle implements the Handle method of the mediator.Behavior interface.
func (b *Behavior) Handle(ctx context.Context, req med.Request, next med.Next) (interface{}, error) {
	opName := fmt.Sprintf("Request(%s)", req.RequestType())
	sp, ctx := opentracing.StartSpanFromContext(ctx, opName)

	resp, err := next(ctx)

	sp.SetTag("mediator.request_type", req.RequestType().String())
	if err != nil {
		ext.LogError(sp, err)
	}
	sp.Finish()

	return resp, err
}

// NewNotificationHandlerMiddleware returns a notification handler middleware
// that adds tracing spans.
func NewNotificationHandlerMiddleware() med.NotificationHandlerMiddleware {
	return med.NotificationHandlerMiddleware(func(h med.NotificationHandler) med.NotificationHandler {
		return med.NotificationHandlerFunc(func(ctx context.Context, n med.Notification) error {
			opName := fmt.Sprintf("Notification(%s)", n.NotificationType())
			sp, ctx := opentracing.StartSpanFromContext(ctx, opName)

			err := h.HandleNotification(ctx, n)

			sp.SetTag("mediator.notification_type", n.NotificationType().String())
			if e, ok := n.(med.IntegrationEvent); ok {
				sp.SetTag("mediator.event_id", e.EventID().String())
			}
			if err != nil {
				ext.LogError(sp, err)
			}
			sp.Finish()

			return err
		})
	})
}

// Publisher is an integration publisher wrapper that adds tracing.
type Publisher struct {
	med.IntegrationPublisher
}

// NewPublisher creates a Publisher.
func NewPublisher(p med.IntegrationPublisher) *Publisher {
	return &Publisher{IntegrationPublisher: p}
}

// PublishIntegrationEvent implements the PublishIntegrationEvent method of the
// mediator.IntegrationPublisher interface.
func (p *Publisher) PublishIntegrationEvent(ctx context.Context, e med.IntegrationEvent) error {
	opName := fmt.Sprintf("Publish(%s)", e.NotificationType())
	sp, ctx := opentracing.StartSpanFromContext(ctx, opName)
	ext.SpanKindProducer.Set(sp)

	err := p.IntegrationPublisher.PublishIntegrationEvent(ctx, e)

	sp.SetTag("mediator.notification_type", e.NotificationType().String())
	sp.SetTag("mediator.event_id", e.EventID().String())
	if err != nil {
		ext.LogError(sp, err)
	}
	sp.Finish()

	return err
}

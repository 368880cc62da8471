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

// NotificationType is the type of a notification, used as its unique identifier.
type NotificationType string

// String returns the string representation of a notification type.
func (nt NotificationType) String() string {
	return string(nt)
}

// Notification is a value broadcast to zero or more handlers.
type Notification interface {
	// NotificationType returns the type of the notification.
	NotificationType() NotificationType
}

// NotificationHandler is a handler of notifications.
type NotificationHandler interface {
	// HandleNotification handles a notification.
	HandleNotification(context.Context, Notification) error
}

// NotificationHandlerFunc is a function that can be used as a notification
// handler.
type NotificationHandlerFunc func(context.Context, Notification) error

// HandleNotification implements the HandleNotification method of the
// NotificationHandler.
func (h NotificationHandlerFunc) HandleNotification(ctx context.Context, n Notification) error {
	return h(ctx, n)
}

// NotificationHandlerMiddleware is a function that middlewares can implement
// to be able to chain.
type NotificationHandlerMiddleware func(NotificationHandler) NotificationHandler

// UseNotificationHandlerMiddleware wraps a NotificationHandler in one or more
// middleware. The first middleware is the outermost.
func UseNotificationHandlerMiddleware(h NotificationHandler, middleware ...NotificationHandlerMiddleware) NotificationHandler {
	// Apply in reversed order.
	for i := len(middleware) - 1; i >= 0; i-- {
		m := middleware[i]
		h = m(h)
	}

	return h
}

// NotificationPublisher publishes notifications to all their handlers.
type NotificationPublisher interface {
	// Publish invokes every handler registered for the notification type.
	Publish(context.Context, Notification) error
}

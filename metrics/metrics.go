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

// Package metrics holds the Prometheus collectors of request handling and
// outbox delivery.
package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	med "github.com/looplab/mediator"
)

// Outcomes used as label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"

	// OutboxPublished is an outbox entry published by the processor.
	OutboxPublished = "published"
	// OutboxFailed is an outbox entry left pending after a failed publish or
	// an entry the store could not read.
	OutboxFailed = "failed"
	// OutboxSaved is an event saved to the outbox after a failed publish.
	OutboxSaved = "saved"
)

// Metrics are the collectors of a mediator, registered once per registerer.
type Metrics struct {
	requestDuration *prometheus.HistogramVec
	outboxEvents    *prometheus.CounterVec
}

// Option is an option setter used to configure creation.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the namespace of the metric names, "mediator" by default.
func WithNamespace(namespace string) Option {
	return func(o *options) {
		o.namespace = namespace
	}
}

// WithBuckets sets the buckets of the request duration histogram.
func WithBuckets(buckets []float64) Option {
	return func(o *options) {
		o.buckets = buckets
	}
}

// NewMetrics creates the collectors and registers them. Collectors already
// registered by an earlier call with the same registerer are reused.
func NewMetrics(reg prometheus.Registerer, opts ...Option) (*Metrics, error) {
	o := &options{
		namespace: "mediator",
		buckets:   prometheus.DefBuckets,
	}
	for _, opt := range opts {
		opt(o)
	}

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: o.namespace,
		Name:      "request_duration_seconds",
		Help:      "Duration of request handling through the pipeline.",
		Buckets:   o.buckets,
	}, []string{"request_type", "outcome"})

	outboxEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: o.namespace,
		Name:      "outbox_events_total",
		Help:      "Integration events passing through the outbox, by outcome.",
	}, []string{"outcome"})

	m := &Metrics{}

	var err error
	if m.requestDuration, err = register(reg, requestDuration); err != nil {
		return nil, err
	}

	if m.outboxEvents, err = register(reg, outboxEvents); err != nil {
		return nil, err
	}

	return m, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}

		return c, fmt.Errorf("could not register metric: %w", err)
	}

	return c, nil
}

// RequestDuration returns the request duration histogram, usable as the
// observer of the performance behavior.
func (m *Metrics) RequestDuration() prometheus.ObserverVec {
	return m.requestDuration
}

// ObserveRequest records the duration of handling a request.
func (m *Metrics) ObserveRequest(t med.RequestType, d time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}

	m.requestDuration.WithLabelValues(string(t), outcome).Observe(d.Seconds())
}

// OutboxEvent counts an outbox event with an outcome.
func (m *Metrics) OutboxEvent(outcome string) {
	m.outboxEvents.WithLabelValues(outcome).Inc()
}

// OutboxEvents returns the outbox event counter.
func (m *Metrics) OutboxEvents() *prometheus.CounterVec {
	return m.outboxEvents
}

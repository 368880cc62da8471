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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	jaeger "github.com/uber/jaeger-client-go"
	"go.uber.org/zap"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/behavior/caching"
	"github.com/looplab/mediator/behavior/lock"
	"github.com/looplab/mediator/behavior/logging"
	"github.com/looplab/mediator/behavior/performance"
	"github.com/looplab/mediator/behavior/retry"
	"github.com/looplab/mediator/behavior/transactional"
	"github.com/looplab/mediator/behavior/validation"
	cache "github.com/looplab/mediator/cache/memory"
	"github.com/looplab/mediator/collector"
	"github.com/looplab/mediator/config"
	"github.com/looplab/mediator/dispatcher"
	"github.com/looplab/mediator/metrics"
	"github.com/looplab/mediator/outbox"
	outboxstore "github.com/looplab/mediator/outbox/memory"
	"github.com/looplab/mediator/publisher/local"
	"github.com/looplab/mediator/registry"
	"github.com/looplab/mediator/tracing"
	"github.com/looplab/mediator/transaction/noop"
	"github.com/looplab/mediator/uuid"
)

// app is the wired guest list service.
type app struct {
	logger      *zap.Logger
	dispatcher  *dispatcher.Dispatcher
	publisher   *local.Publisher
	processor   *outbox.Processor
	outbox      *outboxstore.Store
	invitations *Invitations
	projector   *GuestListProjector

	welcomed   []string
	welcomedMu sync.Mutex
}

func newApp(cfg config.Config, logger *zap.Logger, reg prometheus.Registerer) (*app, error) {
	a := &app{
		logger:      logger,
		outbox:      outboxstore.NewStore(),
		invitations: NewInvitations(),
		projector:   NewGuestListProjector(),
	}

	m, err := metrics.NewMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("could not create metrics: %w", err)
	}

	r, err := registry.NewRegistry(
		registry.WithNotificationHandlerMiddleware(tracing.NewNotificationHandlerMiddleware()),
	)
	if err != nil {
		return nil, fmt.Errorf("could not create registry: %w", err)
	}

	if a.dispatcher, err = dispatcher.NewDispatcher(r,
		dispatcher.WithPipelineOrder(cfg.PipelineOrder()),
		dispatcher.WithLogger(logger),
	); err != nil {
		return nil, fmt.Errorf("could not create dispatcher: %w", err)
	}

	// Integration events loop back to this process.
	if a.publisher, err = local.NewPublisher(local.WithLogger(logger)); err != nil {
		return nil, fmt.Errorf("could not create publisher: %w", err)
	}

	if err := a.publisher.AddHandler(GuestConfirmedType, med.NotificationHandlerFunc(a.welcome)); err != nil {
		return nil, err
	}

	publisher := tracing.NewPublisher(a.publisher)

	if a.processor, err = outbox.NewProcessor(a.outbox, publisher, append(cfg.ProcessorOptions(),
		outbox.WithLogger(logger),
		outbox.WithMetrics(m),
	)...); err != nil {
		return nil, fmt.Errorf("could not create outbox processor: %w", err)
	}

	tx, err := transactional.NewBehavior(noop.NewTransactionManager(), a.dispatcher, append(cfg.TransactionalOptions(),
		transactional.WithPublisher(publisher),
		transactional.WithOutboxStore(a.outbox),
		transactional.WithLogger(logger),
		transactional.WithMetrics(m),
	)...)
	if err != nil {
		return nil, fmt.Errorf("could not create transactional behavior: %w", err)
	}

	commands := med.MatchAnyRequestOf(CreateInviteType, AcceptInviteType, DeclineInviteType)
	answers := med.MatchAnyRequestOf(AcceptInviteType, DeclineInviteType)

	behaviors := []struct {
		m med.RequestMatcher
		b med.Behavior
	}{
		{med.MatchAny(), logging.NewBehavior(logger)},
		{med.MatchAny(), validation.NewBehavior(validation.RequiredFields(), validation.SelfValidating())},
		{med.MatchAny(), performance.NewBehavior(append(cfg.PerformanceOptions(logger),
			performance.WithObserver(m.RequestDuration()),
		)...)},
		{med.MatchAny(), retry.NewBehavior(append(cfg.RetryOptions(logger),
			retry.WithRetryable(func(err error) bool {
				return !errors.Is(err, ErrInviteAnswered) && !errors.Is(err, ErrInviteNotFound)
			}),
		)...)},
		{med.MatchCacheable(), caching.NewBehavior(cache.NewCache(), cfg.CachingOptions(logger)...)},
		{med.MatchAny(), tracing.NewBehavior()},
		{answers, lock.NewBehavior(lock.NewLocalLock(), logger)},
		{commands, tx},
	}
	for _, b := range behaviors {
		if err := r.AddBehavior(b.m, b.b); err != nil {
			return nil, fmt.Errorf("could not add behavior: %w", err)
		}
	}

	if err := a.registerHandlers(r); err != nil {
		return nil, err
	}

	if err := r.Validate(cfg.PipelineOrder()); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}

	return a, nil
}

func (a *app) registerHandlers(r *registry.Registry) error {
	errs := []error{
		registry.HandleVoid(r, CreateInviteType, func(ctx context.Context, c CreateInvite) error {
			i := NewInvitation(c.InvitationID, c.Name, c.Age)
			collector.Track(ctx, i)

			return a.invitations.Save(ctx, i)
		}),
		registry.HandleVoid(r, AcceptInviteType, func(ctx context.Context, c AcceptInvite) error {
			return a.answer(ctx, c.InvitationID, (*Invitation).Accept)
		}),
		registry.HandleVoid(r, DeclineInviteType, func(ctx context.Context, c DeclineInvite) error {
			return a.answer(ctx, c.InvitationID, (*Invitation).Decline)
		}),
		registry.Handle(r, GetGuestListType, func(ctx context.Context, q GetGuestList) (*GuestList, error) {
			return a.projector.GuestList(), nil
		}),
	}

	for _, t := range []med.NotificationType{InviteCreatedType, InviteAcceptedType, InviteDeclinedType} {
		errs = append(errs, r.AddNotificationHandler(t, med.NotificationHandlerFunc(a.projector.Project)))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("could not register handlers: %w", err)
	}

	return nil
}

func (a *app) answer(ctx context.Context, id uuid.UUID, f func(*Invitation) error) error {
	i, err := a.invitations.Find(ctx, id)
	if err != nil {
		return err
	}

	if err := f(i); err != nil {
		return err
	}

	return a.invitations.Save(ctx, i)
}

func (a *app) welcome(ctx context.Context, n med.Notification) error {
	e, ok := n.(*GuestConfirmed)
	if !ok {
		return fmt.Errorf("%w: %T", med.ErrInvalidNotification, n)
	}

	a.welcomedMu.Lock()
	defer a.welcomedMu.Unlock()

	a.welcomed = append(a.welcomed, e.Name)

	return nil
}

// run issues some invitations and answers and writes the results to w.
// Athena tries to decline after accepting, which the invitation refuses.
func (a *app) run(ctx context.Context, w io.Writer) error {
	a.processor.Start()

	athenaID, hadesID, zeusID := uuid.New(), uuid.New(), uuid.New()

	requests := []med.Request{
		CreateInvite{InvitationID: athenaID, Name: "Athena", Age: 42},
		AcceptInvite{InvitationID: athenaID},
		DeclineInvite{InvitationID: athenaID},
		CreateInvite{InvitationID: hadesID, Name: "Hades"},
		AcceptInvite{InvitationID: hadesID},
		CreateInvite{InvitationID: zeusID, Name: "Zeus"},
		DeclineInvite{InvitationID: zeusID},
		CreateInvite{},
	}
	for _, req := range requests {
		if err := med.Execute(ctx, a.dispatcher, req); err != nil {
			fmt.Fprintf(w, "error: %s: %s\n", req.RequestType(), err)
		}
	}

	// Flush what is left in the outbox and wait for the deliveries.
	if err := a.processor.ProcessOnce(ctx); err != nil {
		return fmt.Errorf("could not process outbox: %w", err)
	}

	if err := a.processor.Close(); err != nil {
		return err
	}

	if err := a.publisher.Close(); err != nil {
		return err
	}

	l, err := med.Send[*GuestList](ctx, a.dispatcher, GetGuestList{})
	if err != nil {
		return fmt.Errorf("could not get guest list: %w", err)
	}

	fmt.Fprintf(w, "guest list: %d invited, %d accepted, %d declined\n", l.NumGuests, l.NumAccepted, l.NumDeclined)

	for _, name := range l.Accepted {
		fmt.Fprintf(w, "accepted: %s\n", name)
	}

	a.welcomedMu.Lock()
	defer a.welcomedMu.Unlock()

	for _, name := range a.welcomed {
		fmt.Fprintf(w, "welcomed: %s\n", name)
	}

	pending, err := a.outbox.GetPending(ctx)
	if err != nil {
		return fmt.Errorf("could not get pending events: %w", err)
	}

	fmt.Fprintf(w, "outbox pending: %d\n", len(pending))

	return nil
}

// newTracer creates a global Jaeger tracer. It must be closed on exit using
// the returned io.Closer.
func newTracer(cfg config.Config) (io.Closer, error) {
	transport, err := jaeger.NewUDPTransport(cfg.TracingAgentAddr, 0)
	if err != nil {
		return nil, fmt.Errorf("could not init Jaeger UDP transport: %w", err)
	}

	tracer, closer := jaeger.NewTracer(
		cfg.TracingServiceName,
		jaeger.NewConstSampler(true), // Trace everything.
		jaeger.NewRemoteReporter(transport),
		jaeger.TracerOptions.Gen128Bit(true),
	)
	opentracing.SetGlobalTracer(tracer)

	// Propagate spans through integration events.
	tracing.RegisterContext()

	return closer, nil
}

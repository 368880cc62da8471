// Copyright (c) 2014 - The Event Horizon authors.
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
	"sort"
	"sync"
	"time"

	med "github.com/looplab/mediator"
	"github.com/looplab/mediator/collector"
	"github.com/looplab/mediator/uuid"
)

func init() {
	med.RegisterIntegrationEvent(GuestConfirmedType, func() med.IntegrationEvent {
		return &GuestConfirmed{}
	})
}

const (
	CreateInviteType  med.RequestType = "CreateInvite"
	AcceptInviteType  med.RequestType = "AcceptInvite"
	DeclineInviteType med.RequestType = "DeclineInvite"
	GetGuestListType  med.RequestType = "GetGuestList"

	InviteCreatedType  med.NotificationType = "InviteCreated"
	InviteAcceptedType med.NotificationType = "InviteAccepted"
	InviteDeclinedType med.NotificationType = "InviteDeclined"

	GuestConfirmedType med.NotificationType = "GuestConfirmed"
)

var (
	// ErrInviteNotFound is when an invitation does not exist.
	ErrInviteNotFound = errors.New("invitation not found")
	// ErrInviteAnswered is when accepting a declined, or declining an
	// accepted, invitation.
	ErrInviteAnswered = errors.New("invitation already answered")
)

// CreateInvite creates an invitation for a guest.
type CreateInvite struct {
	InvitationID uuid.UUID
	Name         string
	Age          int `mediator:"optional"`
}

func (c CreateInvite) RequestType() med.RequestType { return CreateInviteType }

// Validate implements the Validate method of the validation.Request interface.
func (c CreateInvite) Validate() []string {
	if c.Age < 0 {
		return []string{"age must not be negative"}
	}

	return nil
}

// AcceptInvite accepts an invitation.
type AcceptInvite struct {
	InvitationID uuid.UUID
}

func (c AcceptInvite) RequestType() med.RequestType { return AcceptInviteType }

// LockKey implements the LockKey method of the lock.Request interface.
func (c AcceptInvite) LockKey() string { return c.InvitationID.String() }

// DeclineInvite declines an invitation.
type DeclineInvite struct {
	InvitationID uuid.UUID
}

func (c DeclineInvite) RequestType() med.RequestType { return DeclineInviteType }

// LockKey implements the LockKey method of the lock.Request interface.
func (c DeclineInvite) LockKey() string { return c.InvitationID.String() }

// GetGuestList queries the guest list.
type GetGuestList struct{}

func (q GetGuestList) RequestType() med.RequestType { return GetGuestListType }

// CacheKey implements the CacheKey method of the mediator.Cacheable interface.
func (q GetGuestList) CacheKey() string { return "guest_list" }

// CacheTTL implements the CacheTTL method of the mediator.Cacheable interface.
func (q GetGuestList) CacheTTL() time.Duration { return time.Second }

// InviteCreated is raised when an invitation is created.
type InviteCreated struct {
	InvitationID uuid.UUID
	Name         string
	Age          int
}

func (e InviteCreated) NotificationType() med.NotificationType { return InviteCreatedType }

// InviteAccepted is raised when an invitation is accepted.
type InviteAccepted struct {
	InvitationID uuid.UUID
}

func (e InviteAccepted) NotificationType() med.NotificationType { return InviteAcceptedType }

// InviteDeclined is raised when an invitation is declined.
type InviteDeclined struct {
	InvitationID uuid.UUID
}

func (e InviteDeclined) NotificationType() med.NotificationType { return InviteDeclinedType }

// GuestConfirmed tells other services that a guest will attend.
type GuestConfirmed struct {
	ID           uuid.UUID `json:"id"`
	InvitationID uuid.UUID `json:"invitation_id"`
	Name         string    `json:"name"`
}

func (e *GuestConfirmed) NotificationType() med.NotificationType { return GuestConfirmedType }

// EventID implements the EventID method of the mediator.IntegrationEvent interface.
func (e *GuestConfirmed) EventID() uuid.UUID { return e.ID }

// Invitation is an invitation of a guest, buffering its events while it is
// modified.
type Invitation struct {
	med.EventBuffer

	ID       uuid.UUID
	Name     string
	Age      int
	Accepted bool
	Declined bool
}

// NewInvitation creates an invitation.
func NewInvitation(id uuid.UUID, name string, age int) *Invitation {
	i := &Invitation{ID: id, Name: name, Age: age}
	i.RaiseDomainEvent(InviteCreated{InvitationID: id, Name: name, Age: age})

	return i
}

// Accept accepts the invitation, accepting twice is a no-op.
func (i *Invitation) Accept() error {
	if i.Declined {
		return fmt.Errorf("%w: %s declined", ErrInviteAnswered, i.Name)
	}

	if i.Accepted {
		return nil
	}

	i.Accepted = true
	i.RaiseDomainEvent(InviteAccepted{InvitationID: i.ID})
	i.RaiseIntegrationEvent(&GuestConfirmed{ID: uuid.New(), InvitationID: i.ID, Name: i.Name})

	return nil
}

// Decline declines the invitation, declining twice is a no-op.
func (i *Invitation) Decline() error {
	if i.Accepted {
		return fmt.Errorf("%w: %s accepted", ErrInviteAnswered, i.Name)
	}

	if i.Declined {
		return nil
	}

	i.Declined = true
	i.RaiseDomainEvent(InviteDeclined{InvitationID: i.ID})

	return nil
}

// Invitations is an in-memory repository of invitations.
type Invitations struct {
	items map[uuid.UUID]Invitation
	mu    sync.RWMutex
}

// NewInvitations creates an empty repository.
func NewInvitations() *Invitations {
	return &Invitations{items: map[uuid.UUID]Invitation{}}
}

// Find returns a copy of an invitation, tracked in the unit of work of ctx.
func (r *Invitations) Find(ctx context.Context, id uuid.UUID) (*Invitation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInviteNotFound, id)
	}

	collector.Track(ctx, &i)

	return &i, nil
}

// Save stores an invitation.
func (r *Invitations) Save(ctx context.Context, i *Invitation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *i
	stored.EventBuffer = med.EventBuffer{}
	r.items[i.ID] = stored

	return nil
}

// GuestList is the read model of all answers.
type GuestList struct {
	NumGuests   int
	NumAccepted int
	NumDeclined int
	Accepted    []string
}

// GuestListProjector projects invitation events into a guest list.
type GuestListProjector struct {
	names map[uuid.UUID]string
	list  GuestList
	mu    sync.RWMutex
}

// NewGuestListProjector creates an empty projector.
func NewGuestListProjector() *GuestListProjector {
	return &GuestListProjector{names: map[uuid.UUID]string{}}
}

// Project handles the invitation domain events.
func (p *GuestListProjector) Project(ctx context.Context, n med.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e := n.(type) {
	case InviteCreated:
		p.names[e.InvitationID] = e.Name
		p.list.NumGuests++
	case InviteAccepted:
		p.list.NumAccepted++
		p.list.Accepted = append(p.list.Accepted, p.names[e.InvitationID])
		sort.Strings(p.list.Accepted)
	case InviteDeclined:
		p.list.NumDeclined++
	default:
		return fmt.Errorf("%w: %T", med.ErrInvalidNotification, n)
	}

	return nil
}

// GuestList returns a copy of the guest list.
func (p *GuestListProjector) GuestList() *GuestList {
	p.mu.RLock()
	defer p.mu.RUnlock()

	l := p.list
	l.Accepted = append([]string(nil), p.list.Accepted...)

	return &l
}

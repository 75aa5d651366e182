// Package calsync implements the sync executors behind the calendar queue:
// pushing event changes out to external calendar providers, pulling remote
// changes back in, and resolving conflicts between the two.
package calsync

import (
	"context"
	"errors"
	"time"

	"github.com/bookedby/calendar-service/internal/queue"
)

// ErrIntegrationNotFound is returned when a calendar integration id does not
// resolve to a configured provider connection.
var ErrIntegrationNotFound = errors.New("calendar integration not found")

// ErrEventNotFound is returned when an event id does not resolve locally or
// at the provider.
var ErrEventNotFound = errors.New("event not found")

// EventSnapshot is the provider-independent representation of one calendar
// event, as carried in queue payloads and exchanged with provider clients.
type EventSnapshot struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
	AllDay      bool      `json:"allDay"`
	Status      string    `json:"status,omitempty"` // confirmed, tentative, cancelled
	UpdatedAt   time.Time `json:"updatedAt"`
}

// DateRange bounds a pull. Nil ends mean the provider default range.
type DateRange struct {
	Start *time.Time
	End   *time.Time
}

// Integration identifies one configured connection to an external calendar
// provider. Read-only from this package's perspective.
type Integration struct {
	ID             string
	Provider       string
	Credentials    string
	CalendarTarget string
}

// PushOperation is the kind of change pushed to a provider.
type PushOperation string

const (
	PushCreate PushOperation = "create"
	PushUpdate PushOperation = "update"
	PushDelete PushOperation = "delete"
)

// ProviderClient talks to one external calendar provider. Implementations
// must bound every call with the context deadline they are given.
type ProviderClient interface {
	PushEvent(ctx context.Context, integ Integration, event EventSnapshot, op PushOperation) error
	PullEvents(ctx context.Context, integ Integration, rng DateRange) ([]EventSnapshot, error)
	FetchEvent(ctx context.Context, integ Integration, eventID string) (*EventSnapshot, error)
}

// ClientRegistry resolves a provider name to its client.
type ClientRegistry interface {
	ClientFor(provider string) (ProviderClient, error)
}

// IntegrationSource looks up integrations and their sync watermarks. The
// watermark is the start time of the last fully successful push for that
// integration; "modified since last sync" is defined against it.
type IntegrationSource interface {
	GetIntegration(ctx context.Context, id string) (*Integration, error)
	ListIntegrations(ctx context.Context) ([]Integration, error)
	SyncWatermark(ctx context.Context, integrationID string) (*time.Time, error)
	SetSyncWatermark(ctx context.Context, integrationID string, t time.Time) error
}

// EventStore is the local event record store the executors reconcile against.
type EventStore interface {
	GetEvent(ctx context.Context, id string) (*EventSnapshot, error)
	SaveRemoteEvent(ctx context.Context, event EventSnapshot) error
	ListModifiedSince(ctx context.Context, since time.Time) ([]EventSnapshot, error)
}

// Enqueuer schedules follow-up queue work, e.g. conflicts detected during a
// pull.
type Enqueuer interface {
	Enqueue(ctx context.Context, input queue.EnqueueInput) (string, error)
}

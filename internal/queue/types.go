package queue

import (
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a queue item.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ValidStatuses contains all valid status values.
var ValidStatuses = map[Status]bool{
	StatusPending:    true,
	StatusProcessing: true,
	StatusCompleted:  true,
	StatusFailed:     true,
	StatusCancelled:  true,
}

// IsValid returns true if the status is a known valid value.
func (s Status) IsValid() bool {
	return ValidStatuses[s]
}

// IsTerminal returns true if no further automatic transition occurs from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TerminalStatuses returns the statuses eligible for purging.
func TerminalStatuses() []Status {
	return []Status{StatusCompleted, StatusFailed, StatusCancelled}
}

// Operation is the kind of sync work a queue item carries.
type Operation string

const (
	OpCreateEvent     Operation = "create_event"
	OpUpdateEvent     Operation = "update_event"
	OpDeleteEvent     Operation = "delete_event"
	OpPullChanges     Operation = "pull_changes"
	OpPushChanges     Operation = "push_changes"
	OpResolveConflict Operation = "resolve_conflict"
)

// ValidOperations contains all valid operation values.
var ValidOperations = map[Operation]bool{
	OpCreateEvent:     true,
	OpUpdateEvent:     true,
	OpDeleteEvent:     true,
	OpPullChanges:     true,
	OpPushChanges:     true,
	OpResolveConflict: true,
}

// IsValid returns true if the operation is a known valid value.
func (o Operation) IsValid() bool {
	return ValidOperations[o]
}

// Item is one unit of scheduled sync work with its own retry state.
type Item struct {
	ID            string          `db:"id"`
	Operation     Operation       `db:"operation"`
	IntegrationID *string         `db:"integration_id"`
	Payload       json.RawMessage `db:"payload"`
	Status        Status          `db:"status"`
	Priority      int             `db:"priority"`
	ScheduledFor  time.Time       `db:"scheduled_for"`
	RetryCount    int             `db:"retry_count"`
	MaxRetries    int             `db:"max_retries"`
	LastError     *string         `db:"last_error"`
	CreatedAt     time.Time       `db:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
}

// PassStats summarizes one processing pass for the caller that triggered it.
type PassStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// Stats is an aggregate view of queue health.
type Stats struct {
	CountsByStatus     map[Status]int `json:"countsByStatus"`
	OldestPendingAgeMS int64          `json:"oldestPendingAgeMs"`
}

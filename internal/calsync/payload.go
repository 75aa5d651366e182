package calsync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bookedby/calendar-service/internal/queue"
)

// EventPayload is the payload for create_event, update_event and
// delete_event items: the event snapshot plus the integrations it should be
// mirrored to. When TargetIntegrationIDs is empty the item's own
// integration_id is the single target.
type EventPayload struct {
	Event                EventSnapshot `json:"event"`
	TargetIntegrationIDs []string      `json:"targetIntegrationIds,omitempty"`
}

// PullPayload is the payload for pull_changes items. All fields are
// optional: a nil integration id pulls every configured integration and nil
// dates mean the provider default range.
type PullPayload struct {
	IntegrationID *string    `json:"integrationId,omitempty"`
	StartDate     *time.Time `json:"startDate,omitempty"`
	EndDate       *time.Time `json:"endDate,omitempty"`
}

// PushPayload is the payload for push_changes items.
type PushPayload struct {
	IntegrationID string `json:"integrationId"`
}

// ConflictPayload is the payload for resolve_conflict items.
type ConflictPayload struct {
	EventID       string           `json:"eventId"`
	IntegrationID string           `json:"integrationId"`
	Strategy      ConflictStrategy `json:"strategy"`
}

// DecodePayload decodes raw payload bytes into the typed variant for the
// given operation. This is the single place the operation tag is mapped to a
// payload shape.
func DecodePayload(op queue.Operation, raw json.RawMessage) (interface{}, error) {
	switch op {
	case queue.OpCreateEvent, queue.OpUpdateEvent, queue.OpDeleteEvent:
		var p EventPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if p.Event.ID == "" {
			return nil, fmt.Errorf("event payload missing event id")
		}
		return p, nil
	case queue.OpPullChanges:
		var p PullPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case queue.OpPushChanges:
		var p PushPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		return p, nil
	case queue.OpResolveConflict:
		var p ConflictPayload
		if err := unmarshalPayload(raw, &p); err != nil {
			return nil, err
		}
		if p.EventID == "" {
			return nil, fmt.Errorf("conflict payload missing event id")
		}
		if !p.Strategy.IsValid() {
			return nil, fmt.Errorf("unknown conflict strategy %q", p.Strategy)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("no payload shape for operation %q", op)
	}
}

// unmarshalPayload tolerates empty and null payloads, leaving the variant at
// its zero value.
func unmarshalPayload(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}

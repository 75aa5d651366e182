package calsync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookedby/calendar-service/internal/queue"
)

func TestDecodePayloadEvent(t *testing.T) {
	raw := json.RawMessage(`{
		"event": {"id": "evt-1", "title": "Standup"},
		"targetIntegrationIds": ["integ-a", "integ-b"]
	}`)

	for _, op := range []queue.Operation{queue.OpCreateEvent, queue.OpUpdateEvent, queue.OpDeleteEvent} {
		decoded, err := DecodePayload(op, raw)
		require.NoError(t, err, "operation %s", op)

		payload, ok := decoded.(EventPayload)
		require.True(t, ok)
		assert.Equal(t, "evt-1", payload.Event.ID)
		assert.Equal(t, "Standup", payload.Event.Title)
		assert.Equal(t, []string{"integ-a", "integ-b"}, payload.TargetIntegrationIDs)
	}
}

func TestDecodePayloadEventMissingID(t *testing.T) {
	_, err := DecodePayload(queue.OpCreateEvent, json.RawMessage(`{"event": {"title": "No id"}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event id")

	// An empty payload has no event either.
	_, err = DecodePayload(queue.OpCreateEvent, nil)
	require.Error(t, err)
}

func TestDecodePayloadPull(t *testing.T) {
	decoded, err := DecodePayload(queue.OpPullChanges, json.RawMessage(`{
		"integrationId": "integ-a",
		"startDate": "2026-03-01T00:00:00Z"
	}`))
	require.NoError(t, err)

	payload, ok := decoded.(PullPayload)
	require.True(t, ok)
	require.NotNil(t, payload.IntegrationID)
	assert.Equal(t, "integ-a", *payload.IntegrationID)
	require.NotNil(t, payload.StartDate)
	assert.Nil(t, payload.EndDate)

	// Pull payloads are fully optional: empty and null both decode to the
	// zero value, which means "all integrations, default range".
	for _, raw := range []json.RawMessage{nil, json.RawMessage(`null`), json.RawMessage(`{}`)} {
		decoded, err := DecodePayload(queue.OpPullChanges, raw)
		require.NoError(t, err)
		assert.Equal(t, PullPayload{}, decoded.(PullPayload))
	}
}

func TestDecodePayloadConflict(t *testing.T) {
	decoded, err := DecodePayload(queue.OpResolveConflict, json.RawMessage(`{
		"eventId": "evt-1",
		"integrationId": "integ-a",
		"strategy": "merge"
	}`))
	require.NoError(t, err)

	payload, ok := decoded.(ConflictPayload)
	require.True(t, ok)
	assert.Equal(t, "evt-1", payload.EventID)
	assert.Equal(t, StrategyMerge, payload.Strategy)

	_, err = DecodePayload(queue.OpResolveConflict, json.RawMessage(`{
		"eventId": "evt-1",
		"strategy": "newest-wins"
	}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown conflict strategy")

	_, err = DecodePayload(queue.OpResolveConflict, json.RawMessage(`{"strategy": "merge"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event id")
}

func TestDecodePayloadUnknownOperation(t *testing.T) {
	_, err := DecodePayload(queue.Operation("rebuild_index"), json.RawMessage(`{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no payload shape")
}

func TestDecodePayloadMalformedJSON(t *testing.T) {
	_, err := DecodePayload(queue.OpPushChanges, json.RawMessage(`{"integrationId": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode payload")
}

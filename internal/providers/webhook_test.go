package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookedby/calendar-service/internal/calsync"
)

func newTestWebhookClient() *WebhookClient {
	logger := zerolog.Nop()
	return NewWebhookClient(WebhookConfig{
		Timeout:           5 * time.Second,
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}, &logger)
}

func testEvent() calsync.EventSnapshot {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	return calsync.EventSnapshot{
		ID:          "evt-1",
		Title:       "Standup",
		Description: "Daily sync",
		Location:    "Room 4",
		StartTime:   start,
		EndTime:     start.Add(15 * time.Minute),
		Status:      "confirmed",
		UpdatedAt:   start.Add(-time.Hour),
	}
}

func TestWebhookPushEvent(t *testing.T) {
	var gotPath, gotAuth, gotDelivery string
	var gotBody webhookPushBody

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotDelivery = r.Header.Get("X-Delivery-Id")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := newTestWebhookClient()
	integ := calsync.Integration{
		ID:             "integ-a",
		Provider:       "webhook",
		Credentials:    "secret-token",
		CalendarTarget: srv.URL,
	}

	err := client.PushEvent(context.Background(), integ, testEvent(), calsync.PushCreate)
	require.NoError(t, err)

	assert.Equal(t, "/events", gotPath)
	assert.Equal(t, "Bearer secret-token", gotAuth)
	assert.NotEmpty(t, gotDelivery)
	assert.Equal(t, "create", gotBody.Operation)
	assert.Equal(t, "evt-1", gotBody.Event.ID)

	// Pushes carry an iCalendar rendition alongside the JSON.
	assert.Contains(t, gotBody.ICS, "BEGIN:VCALENDAR")
	assert.Contains(t, gotBody.ICS, "SUMMARY:Standup")
	assert.Contains(t, gotBody.ICS, "STATUS:CONFIRMED")
}

func TestWebhookPushDeleteOmitsICS(t *testing.T) {
	var gotBody webhookPushBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestWebhookClient()
	integ := calsync.Integration{ID: "integ-a", CalendarTarget: srv.URL}

	err := client.PushEvent(context.Background(), integ, testEvent(), calsync.PushDelete)
	require.NoError(t, err)
	assert.Equal(t, "delete", gotBody.Operation)
	assert.Empty(t, gotBody.ICS)
}

func TestWebhookPushRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := newTestWebhookClient()
	integ := calsync.Integration{ID: "integ-a", CalendarTarget: srv.URL}

	err := client.PushEvent(context.Background(), integ, testEvent(), calsync.PushUpdate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
}

func TestWebhookPullEvents(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(webhookPullBody{
			Events: []calsync.EventSnapshot{testEvent()},
		})
	}))
	defer srv.Close()

	client := newTestWebhookClient()
	integ := calsync.Integration{ID: "integ-a", CalendarTarget: srv.URL + "/"}

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 7)
	events, err := client.PullEvents(context.Background(), integ, calsync.DateRange{Start: &start, End: &end})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].ID)
	assert.Contains(t, gotQuery, "start=2026-03-01T00%3A00%3A00Z")
	assert.Contains(t, gotQuery, "end=2026-03-08T00%3A00%3A00Z")
}

func TestWebhookFetchEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/events/evt-1") {
			json.NewEncoder(w).Encode(testEvent())
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := newTestWebhookClient()
	integ := calsync.Integration{ID: "integ-a", CalendarTarget: srv.URL}

	ev, err := client.FetchEvent(context.Background(), integ, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "Standup", ev.Title)

	_, err = client.FetchEvent(context.Background(), integ, "evt-missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, calsync.ErrEventNotFound)
}

func TestEventToICSAllDay(t *testing.T) {
	event := testEvent()
	event.AllDay = true
	event.Status = "tentative"

	doc := eventToICS(event)
	assert.Contains(t, doc, "BEGIN:VEVENT")
	assert.Contains(t, doc, "UID:evt-1")
	assert.Contains(t, doc, "STATUS:TENTATIVE")
	// All-day events carry date-only start and end.
	assert.Contains(t, doc, "DTSTART;VALUE=DATE:20260302")
}

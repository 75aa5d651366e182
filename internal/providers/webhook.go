package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/bookedby/calendar-service/internal/calsync"
)

// WebhookConfig tunes the webhook client. Zero values fall back to defaults.
type WebhookConfig struct {
	// Timeout bounds a single request. Default 30s.
	Timeout time.Duration
	// RequestsPerSecond throttles outbound calls per client. Default 5.
	RequestsPerSecond float64
	// BurstSize allows short bursts above the sustained rate. Default 10.
	BurstSize int
}

// WebhookClient pushes and pulls events over plain HTTP, for Outlook-style
// webhook integrations and any receiver speaking the same contract. The
// integration's calendar_target is the base URL and its credentials field is
// sent as a bearer token. Push bodies carry the event both as JSON and as an
// iCalendar document so receivers can pick whichever they can ingest.
type WebhookClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zerolog.Logger
}

// NewWebhookClient creates a webhook client.
func NewWebhookClient(cfg WebhookConfig, logger *zerolog.Logger) *WebhookClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 10
	}
	return &WebhookClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.BurstSize),
		logger:     logger,
	}
}

type webhookPushBody struct {
	Operation string                `json:"operation"`
	Event     calsync.EventSnapshot `json:"event"`
	ICS       string                `json:"ics,omitempty"`
}

type webhookPullBody struct {
	Events []calsync.EventSnapshot `json:"events"`
}

// PushEvent posts one event change to the integration's endpoint.
func (c *WebhookClient) PushEvent(ctx context.Context, integ calsync.Integration, event calsync.EventSnapshot, op calsync.PushOperation) error {
	body := webhookPushBody{
		Operation: string(op),
		Event:     event,
	}
	if op != calsync.PushDelete {
		body.ICS = eventToICS(event)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal push body: %w", err)
	}

	endpoint := strings.TrimRight(integ.CalendarTarget, "/") + "/events"
	resp, err := c.do(ctx, integ, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook push rejected with HTTP %d", resp.StatusCode)
	}
	return nil
}

// PullEvents fetches events from the integration's endpoint, optionally
// bounded to a date range.
func (c *WebhookClient) PullEvents(ctx context.Context, integ calsync.Integration, rng calsync.DateRange) ([]calsync.EventSnapshot, error) {
	endpoint := strings.TrimRight(integ.CalendarTarget, "/") + "/events"
	query := url.Values{}
	if rng.Start != nil {
		query.Set("start", rng.Start.Format(time.RFC3339))
	}
	if rng.End != nil {
		query.Set("end", rng.End.Format(time.RFC3339))
	}
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.do(ctx, integ, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook pull failed with HTTP %d", resp.StatusCode)
	}

	var body webhookPullBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pull response: %w", err)
	}
	return body.Events, nil
}

// FetchEvent fetches a single event by id.
func (c *WebhookClient) FetchEvent(ctx context.Context, integ calsync.Integration, eventID string) (*calsync.EventSnapshot, error) {
	endpoint := strings.TrimRight(integ.CalendarTarget, "/") + "/events/" + url.PathEscape(eventID)
	resp, err := c.do(ctx, integ, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("event %s: %w", eventID, calsync.ErrEventNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("webhook fetch failed with HTTP %d", resp.StatusCode)
	}

	var ev calsync.EventSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

func (c *WebhookClient) do(ctx context.Context, integ calsync.Integration, method, endpoint string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Unique per attempt so receivers can dedupe retried deliveries.
	req.Header.Set("X-Delivery-Id", uuid.NewString())
	if integ.Credentials != "" {
		req.Header.Set("Authorization", "Bearer "+integ.Credentials)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("webhook request failed: %w", err)
	}
	return resp, nil
}

// eventToICS serializes one event snapshot as an iCalendar document.
func eventToICS(event calsync.EventSnapshot) string {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)

	ev := cal.AddEvent(event.ID)
	ev.SetDtStampTime(event.UpdatedAt)
	ev.SetSummary(event.Title)
	if event.Description != "" {
		ev.SetDescription(event.Description)
	}
	if event.Location != "" {
		ev.SetLocation(event.Location)
	}
	if event.AllDay {
		ev.SetAllDayStartAt(event.StartTime)
		ev.SetAllDayEndAt(event.EndTime)
	} else {
		ev.SetStartAt(event.StartTime)
		ev.SetEndAt(event.EndTime)
	}
	switch event.Status {
	case "tentative":
		ev.SetStatus(ics.ObjectStatusTentative)
	case "cancelled":
		ev.SetStatus(ics.ObjectStatusCancelled)
	default:
		ev.SetStatus(ics.ObjectStatusConfirmed)
	}
	return cal.Serialize()
}

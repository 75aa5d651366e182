package calsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/bookedby/calendar-service/internal/queue"
)

// ExecutorConfig tunes the executors. Zero values fall back to defaults.
type ExecutorConfig struct {
	// PushTimeout bounds one push to one provider. Default 30s.
	PushTimeout time.Duration
	// PullTimeout bounds one pull from one provider. Default 30s.
	PullTimeout time.Duration
}

// Executor implements the per-operation sync handlers the dispatcher routes
// to. All provider interaction goes through the narrow ProviderClient
// interface and is bounded by a timeout; a timed-out call is just a failed
// attempt feeding the retry path.
type Executor struct {
	integrations IntegrationSource
	clients      ClientRegistry
	events       EventStore
	enqueuer     Enqueuer
	logger       *zerolog.Logger
	cfg          ExecutorConfig
}

// NewExecutor wires the executors to their collaborators.
func NewExecutor(integrations IntegrationSource, clients ClientRegistry, events EventStore, enqueuer Enqueuer, logger *zerolog.Logger, cfg ExecutorConfig) *Executor {
	if cfg.PushTimeout <= 0 {
		cfg.PushTimeout = 30 * time.Second
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = 30 * time.Second
	}
	return &Executor{
		integrations: integrations,
		clients:      clients,
		events:       events,
		enqueuer:     enqueuer,
		logger:       logger,
		cfg:          cfg,
	}
}

// Register binds every operation kind to its handler.
func (e *Executor) Register(d *queue.Dispatcher) {
	d.Register(queue.OpCreateEvent, func(ctx context.Context, item queue.Item) error {
		return e.pushEvent(ctx, item, PushCreate)
	})
	d.Register(queue.OpUpdateEvent, func(ctx context.Context, item queue.Item) error {
		return e.pushEvent(ctx, item, PushUpdate)
	})
	d.Register(queue.OpDeleteEvent, func(ctx context.Context, item queue.Item) error {
		return e.pushEvent(ctx, item, PushDelete)
	})
	d.Register(queue.OpPullChanges, e.handlePullChanges)
	d.Register(queue.OpPushChanges, e.handlePushChanges)
	d.Register(queue.OpResolveConflict, e.handleResolveConflict)
}

// pushEvent fans one event change out to every target integration
// concurrently and reduces the per-target outcomes with at-least-one-success:
// partial mirroring beats blocking all calendar visibility on the flakiest
// provider. Individual target failures are logged, not propagated, as long
// as one target accepted the push.
func (e *Executor) pushEvent(ctx context.Context, item queue.Item, op PushOperation) error {
	decoded, err := DecodePayload(item.Operation, item.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	payload := decoded.(EventPayload)

	targets := payload.TargetIntegrationIDs
	if len(targets) == 0 && item.IntegrationID != nil {
		targets = []string{*item.IntegrationID}
	}
	if len(targets) == 0 {
		return queue.Permanent(errors.New("event item has no target integrations"))
	}

	type targetOutcome struct {
		integrationID string
		err           error
	}
	outcomes := make([]targetOutcome, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	for i, integrationID := range targets {
		g.Go(func() error {
			outcomes[i] = targetOutcome{
				integrationID: integrationID,
				err:           e.pushToTarget(gctx, integrationID, payload.Event, op),
			}
			return nil
		})
	}
	// Goroutines report through the outcomes slice, never through errgroup,
	// so the group context is not cancelled before every target finishes.
	_ = g.Wait()

	succeeded := 0
	var failures []string
	for _, out := range outcomes {
		if out.err == nil {
			succeeded++
			continue
		}
		failures = append(failures, fmt.Sprintf("%s: %v", out.integrationID, out.err))
		e.logger.Warn().
			Str("item_id", item.ID).
			Str("integration_id", out.integrationID).
			Str("push_op", string(op)).
			Err(out.err).
			Msg("Push to integration failed")
	}

	if succeeded == 0 {
		return fmt.Errorf("%s push failed for all %d integrations: %s", op, len(targets), strings.Join(failures, "; "))
	}
	return nil
}

func (e *Executor) pushToTarget(ctx context.Context, integrationID string, event EventSnapshot, op PushOperation) error {
	integ, err := e.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	client, err := e.clients.ClientFor(integ.Provider)
	if err != nil {
		return err
	}

	pushCtx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
	defer cancel()
	return client.PushEvent(pushCtx, *integ, event, op)
}

// handlePullChanges fetches remote events for the targeted integrations and
// reconciles them into the local store. A pull succeeds whenever the fetch
// itself completes; detected conflicts do not fail it, they are enqueued as
// resolve_conflict work and handled asynchronously.
func (e *Executor) handlePullChanges(ctx context.Context, item queue.Item) error {
	decoded, err := DecodePayload(item.Operation, item.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	payload := decoded.(PullPayload)

	integs, err := e.pullTargets(ctx, item, payload)
	if err != nil {
		return err
	}
	rng := DateRange{Start: payload.StartDate, End: payload.EndDate}

	for _, integ := range integs {
		client, err := e.clients.ClientFor(integ.Provider)
		if err != nil {
			return err
		}

		pullCtx, cancel := context.WithTimeout(ctx, e.cfg.PullTimeout)
		remote, err := client.PullEvents(pullCtx, integ, rng)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to pull events from %s: %w", integ.ID, err)
		}

		conflicts := e.reconcile(ctx, item, integ, remote)
		e.logger.Info().
			Str("item_id", item.ID).
			Str("integration_id", integ.ID).
			Int("pulled", len(remote)).
			Int("conflicts", conflicts).
			Msg("Pulled remote changes")
	}
	return nil
}

func (e *Executor) pullTargets(ctx context.Context, item queue.Item, payload PullPayload) ([]Integration, error) {
	integrationID := payload.IntegrationID
	if integrationID == nil {
		integrationID = item.IntegrationID
	}
	if integrationID != nil {
		integ, err := e.integrations.GetIntegration(ctx, *integrationID)
		if err != nil {
			return nil, err
		}
		return []Integration{*integ}, nil
	}
	return e.integrations.ListIntegrations(ctx)
}

// reconcile folds pulled events into the local store. A remote event unknown
// locally is saved as-is. A known event that diverged is saved when the local
// copy has not been edited since the integration's watermark; otherwise both
// sides changed and a merge conflict item is enqueued. Returns the number of
// conflicts enqueued.
func (e *Executor) reconcile(ctx context.Context, item queue.Item, integ Integration, remote []EventSnapshot) int {
	var watermark time.Time
	if w, err := e.integrations.SyncWatermark(ctx, integ.ID); err == nil && w != nil {
		watermark = *w
	}

	conflicts := 0
	for _, ev := range remote {
		local, err := e.events.GetEvent(ctx, ev.ID)
		if errors.Is(err, ErrEventNotFound) {
			if saveErr := e.events.SaveRemoteEvent(ctx, ev); saveErr != nil {
				e.logger.Error().Err(saveErr).Str("event_id", ev.ID).Msg("Failed to save pulled event")
			}
			continue
		}
		if err != nil {
			e.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to load local event during reconcile")
			continue
		}
		if snapshotsEqual(*local, ev) {
			continue
		}

		if !local.UpdatedAt.After(watermark) {
			// Remote changed, local did not: remote wins cleanly.
			if saveErr := e.events.SaveRemoteEvent(ctx, ev); saveErr != nil {
				e.logger.Error().Err(saveErr).Str("event_id", ev.ID).Msg("Failed to save pulled event")
			}
			continue
		}

		_, err = e.enqueuer.Enqueue(ctx, queue.EnqueueInput{
			Operation:     queue.OpResolveConflict,
			IntegrationID: &integ.ID,
			Payload: ConflictPayload{
				EventID:       ev.ID,
				IntegrationID: integ.ID,
				Strategy:      StrategyMerge,
			},
			Priority: item.Priority,
		})
		if err != nil {
			e.logger.Error().Err(err).Str("event_id", ev.ID).Msg("Failed to enqueue conflict resolution")
			continue
		}
		conflicts++
	}
	return conflicts
}

// handlePushChanges pushes every local event modified since the
// integration's watermark and advances the watermark once everything went
// through. A partial failure keeps the watermark, so the retry re-pushes the
// whole window; duplicate pushes are tolerated, providers dedupe on event id.
func (e *Executor) handlePushChanges(ctx context.Context, item queue.Item) error {
	decoded, err := DecodePayload(item.Operation, item.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	payload := decoded.(PushPayload)

	integrationID := payload.IntegrationID
	if integrationID == "" && item.IntegrationID != nil {
		integrationID = *item.IntegrationID
	}
	if integrationID == "" {
		return queue.Permanent(errors.New("push_changes item has no integration id"))
	}

	integ, err := e.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	client, err := e.clients.ClientFor(integ.Provider)
	if err != nil {
		return err
	}

	var since time.Time
	if w, err := e.integrations.SyncWatermark(ctx, integ.ID); err != nil {
		return err
	} else if w != nil {
		since = *w
	}

	passStart := time.Now()
	modified, err := e.events.ListModifiedSince(ctx, since)
	if err != nil {
		return err
	}

	var failures []string
	for _, ev := range modified {
		pushCtx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
		pushErr := client.PushEvent(pushCtx, *integ, ev, PushUpdate)
		cancel()
		if pushErr != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", ev.ID, pushErr))
		}
	}
	if len(failures) > 0 {
		return fmt.Errorf("push_changes failed for %d of %d events: %s", len(failures), len(modified), strings.Join(failures, "; "))
	}

	if err := e.integrations.SetSyncWatermark(ctx, integ.ID, passStart); err != nil {
		return fmt.Errorf("failed to advance sync watermark: %w", err)
	}

	e.logger.Info().
		Str("item_id", item.ID).
		Str("integration_id", integ.ID).
		Int("pushed", len(modified)).
		Time("watermark", passStart).
		Msg("Pushed local changes")
	return nil
}

// handleResolveConflict loads both versions of the event and applies the
// requested strategy, writing the winner back to whichever sides diverged.
func (e *Executor) handleResolveConflict(ctx context.Context, item queue.Item) error {
	decoded, err := DecodePayload(item.Operation, item.Payload)
	if err != nil {
		return queue.Permanent(err)
	}
	payload := decoded.(ConflictPayload)

	integrationID := payload.IntegrationID
	if integrationID == "" && item.IntegrationID != nil {
		integrationID = *item.IntegrationID
	}
	if integrationID == "" {
		return queue.Permanent(errors.New("resolve_conflict item has no integration id"))
	}

	integ, err := e.integrations.GetIntegration(ctx, integrationID)
	if err != nil {
		return err
	}
	client, err := e.clients.ClientFor(integ.Provider)
	if err != nil {
		return err
	}

	local, err := e.events.GetEvent(ctx, payload.EventID)
	if err != nil {
		return err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, e.cfg.PullTimeout)
	remote, err := client.FetchEvent(fetchCtx, *integ, payload.EventID)
	cancel()
	if err != nil {
		return err
	}

	resolution, err := Resolve(*local, *remote, payload.Strategy)
	if err != nil {
		return queue.Permanent(err)
	}

	if resolution.SaveLocal {
		if err := e.events.SaveRemoteEvent(ctx, resolution.Event); err != nil {
			return fmt.Errorf("failed to apply resolution locally: %w", err)
		}
	}
	if resolution.PushRemote {
		pushCtx, cancel := context.WithTimeout(ctx, e.cfg.PushTimeout)
		err := client.PushEvent(pushCtx, *integ, resolution.Event, PushUpdate)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to apply resolution remotely: %w", err)
		}
	}

	e.logger.Info().
		Str("item_id", item.ID).
		Str("event_id", payload.EventID).
		Str("strategy", string(payload.Strategy)).
		Msg("Resolved event conflict")
	return nil
}

// snapshotsEqual compares everything except the modification timestamp.
func snapshotsEqual(a, b EventSnapshot) bool {
	return a.ID == b.ID &&
		a.Title == b.Title &&
		a.Description == b.Description &&
		a.Location == b.Location &&
		a.StartTime.Equal(b.StartTime) &&
		a.EndTime.Equal(b.EndTime) &&
		a.AllDay == b.AllDay &&
		a.Status == b.Status
}

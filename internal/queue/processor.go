package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type outcome string

const (
	outcomeSucceeded outcome = "succeeded"
	outcomeRetried   outcome = "retried"
	outcomeFailed    outcome = "failed"
)

// ProcessorConfig tunes a processor. Zero values fall back to defaults.
type ProcessorConfig struct {
	// BatchSize bounds how many items one pass claims. Default 10.
	BatchSize int
	// Now overrides the clock, for tests. Default time.Now.
	Now func() time.Time
}

// Processor runs processing passes over the queue: claim a bounded batch,
// dispatch each item, and persist the outcome decided by the retry policy.
// Items are processed one at a time in claimed order to bound load on the
// external providers; any fan-out happens inside a single dispatch.
type Processor struct {
	store      Store
	dispatcher *Dispatcher
	logger     *zerolog.Logger
	batchSize  int
	now        func() time.Time
}

// NewProcessor creates a processor over the given store and dispatcher.
func NewProcessor(store Store, dispatcher *Dispatcher, logger *zerolog.Logger, cfg ProcessorConfig) *Processor {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
		batchSize:  cfg.BatchSize,
		now:        cfg.Now,
	}
}

// ProcessQueue runs one pass. Safe to call concurrently: the store's atomic
// claim guarantees overlapping passes never pick up the same item. Only a
// failure to claim the batch aborts the pass; per-item failures feed the
// retry policy and the pass moves on.
func (p *Processor) ProcessQueue(ctx context.Context, batchSize int) (PassStats, error) {
	if batchSize <= 0 {
		batchSize = p.batchSize
	}

	start := p.now()
	items, err := p.store.ClaimBatch(ctx, batchSize)
	if err != nil {
		passesTotal.WithLabelValues("claim_error").Inc()
		return PassStats{}, fmt.Errorf("failed to claim batch: %w", err)
	}
	claimedBatchSize.Observe(float64(len(items)))

	var stats PassStats
	for _, item := range items {
		stats.Processed++
		switch p.processItem(ctx, item) {
		case outcomeSucceeded:
			stats.Succeeded++
		case outcomeRetried:
			stats.Retried++
		case outcomeFailed:
			stats.Failed++
		}
	}

	passesTotal.WithLabelValues("ok").Inc()
	passDuration.Observe(p.now().Sub(start).Seconds())

	if stats.Processed > 0 {
		p.logger.Info().
			Int("processed", stats.Processed).
			Int("succeeded", stats.Succeeded).
			Int("failed", stats.Failed).
			Int("retried", stats.Retried).
			Msg("Queue pass completed")
	}
	return stats, nil
}

// ProcessItem claims and processes a single item by id, outside the normal
// batch flow. Returns ErrNotFound for unknown ids and an error when the item
// is not currently eligible.
func (p *Processor) ProcessItem(ctx context.Context, id string) (PassStats, error) {
	item, err := p.store.Get(ctx, id)
	if err != nil {
		return PassStats{}, err
	}

	claimed, err := p.store.MarkProcessing(ctx, id)
	if err != nil {
		return PassStats{}, err
	}
	if !claimed {
		return PassStats{}, fmt.Errorf("item %s is not eligible for processing (status %s)", id, item.Status)
	}

	stats := PassStats{Processed: 1}
	switch p.processItem(ctx, *item) {
	case outcomeSucceeded:
		stats.Succeeded++
	case outcomeRetried:
		stats.Retried++
	case outcomeFailed:
		stats.Failed++
	}
	return stats, nil
}

// processItem dispatches one claimed item and persists its next state:
// completed on success, failed when the error is permanent or the budget is
// exhausted, pending with an advanced schedule otherwise.
func (p *Processor) processItem(ctx context.Context, item Item) outcome {
	dispatchStart := p.now()
	err := p.dispatcher.Dispatch(ctx, item)
	dispatchDuration.WithLabelValues(string(item.Operation)).Observe(p.now().Sub(dispatchStart).Seconds())

	if err == nil {
		if markErr := p.store.MarkCompleted(ctx, item.ID); markErr != nil {
			p.logger.Error().Err(markErr).Str("item_id", item.ID).Msg("Failed to mark item completed")
		}
		itemsTotal.WithLabelValues(string(item.Operation), string(outcomeSucceeded)).Inc()
		p.logger.Debug().
			Str("item_id", item.ID).
			Str("operation", string(item.Operation)).
			Msg("Item completed")
		return outcomeSucceeded
	}

	if IsPermanent(err) {
		if markErr := p.store.MarkFailed(ctx, item.ID, item.RetryCount, err.Error()); markErr != nil {
			p.logger.Error().Err(markErr).Str("item_id", item.ID).Msg("Failed to mark item failed")
		}
		itemsTotal.WithLabelValues(string(item.Operation), string(outcomeFailed)).Inc()
		p.logger.Error().
			Str("item_id", item.ID).
			Str("operation", string(item.Operation)).
			Err(err).
			Msg("Item failed permanently")
		return outcomeFailed
	}

	decision := Decide(item.RetryCount, item.MaxRetries, p.now())
	if decision.Terminal {
		if markErr := p.store.MarkFailed(ctx, item.ID, decision.RetryCount, err.Error()); markErr != nil {
			p.logger.Error().Err(markErr).Str("item_id", item.ID).Msg("Failed to mark item failed")
		}
		itemsTotal.WithLabelValues(string(item.Operation), string(outcomeFailed)).Inc()
		p.logger.Error().
			Str("item_id", item.ID).
			Str("operation", string(item.Operation)).
			Int("retry_count", decision.RetryCount).
			Err(err).
			Msg("Item failed, retries exhausted")
		return outcomeFailed
	}

	if markErr := p.store.MarkRetry(ctx, item.ID, decision.NextAttempt, err.Error()); markErr != nil {
		p.logger.Error().Err(markErr).Str("item_id", item.ID).Msg("Failed to reschedule item")
	}
	itemsTotal.WithLabelValues(string(item.Operation), string(outcomeRetried)).Inc()
	p.logger.Warn().
		Str("item_id", item.ID).
		Str("operation", string(item.Operation)).
		Int("retry_count", decision.RetryCount).
		Time("next_attempt", decision.NextAttempt).
		Err(err).
		Msg("Item failed, scheduled for retry")
	return outcomeRetried
}

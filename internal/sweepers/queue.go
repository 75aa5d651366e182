// Package sweepers contains periodic maintenance loops for the sync queue.
package sweepers

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// QueueSweeper periodically re-queues items stuck in processing. An item can
// only stay processing across passes when a processor crashed mid-item; the
// sweep returns such items to pending without touching their retry budget.
type QueueSweeper struct {
	pool       *pgxpool.Pool
	logger     *zerolog.Logger
	interval   time.Duration
	staleAfter time.Duration
	stopChan   chan struct{}
}

// NewQueueSweeper creates a sweeper that runs every interval and considers a
// processing item stale once it has not been touched for staleAfter.
func NewQueueSweeper(pool *pgxpool.Pool, logger *zerolog.Logger, interval, staleAfter time.Duration) *QueueSweeper {
	return &QueueSweeper{
		pool:       pool,
		logger:     logger,
		interval:   interval,
		staleAfter: staleAfter,
		stopChan:   make(chan struct{}),
	}
}

// Start begins the periodic recovery sweep. Blocks until the context is
// cancelled or Stop is called.
func (s *QueueSweeper) Start(ctx context.Context) {
	s.logger.Info().
		Dur("interval", s.interval).
		Dur("stale_after", s.staleAfter).
		Msg("Starting sync queue sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Sync queue sweeper stopping (context cancelled)")
			return
		case <-s.stopChan:
			s.logger.Info().Msg("Sync queue sweeper stopping (stop signal)")
			return
		case <-ticker.C:
			if _, err := s.RecoverStaleItems(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Failed to recover stale items")
			}
		}
	}
}

// Stop signals the sweeper to stop.
func (s *QueueSweeper) Stop() {
	close(s.stopChan)
}

// RecoverStaleItems returns stale processing items to pending and reports how
// many were recovered.
func (s *QueueSweeper) RecoverStaleItems(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-s.staleAfter)
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale items: %w", err)
	}

	recovered := int(tag.RowsAffected())
	if recovered > 0 {
		s.logger.Info().Int("recovered", recovered).Msg("Recovered stale processing items")
	}
	return recovered, nil
}

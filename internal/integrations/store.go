// Package integrations provides read access to configured calendar
// integrations. Integration records are owned by the CRM; this service only
// reads them and maintains the per-integration sync watermark.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookedby/calendar-service/internal/calsync"
)

// Store looks up calendar integrations in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetIntegration returns one integration by id, or ErrIntegrationNotFound.
func (s *Store) GetIntegration(ctx context.Context, id string) (*calsync.Integration, error) {
	var integ calsync.Integration
	err := s.pool.QueryRow(ctx, `
		SELECT id, provider, credentials, calendar_target
		FROM calendar_integrations
		WHERE id = $1
	`, id).Scan(&integ.ID, &integ.Provider, &integ.Credentials, &integ.CalendarTarget)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("integration %s: %w", id, calsync.ErrIntegrationNotFound)
		}
		return nil, fmt.Errorf("failed to get integration: %w", err)
	}
	return &integ, nil
}

// ListIntegrations returns all configured integrations.
func (s *Store) ListIntegrations(ctx context.Context) ([]calsync.Integration, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, provider, credentials, calendar_target
		FROM calendar_integrations
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list integrations: %w", err)
	}
	defer rows.Close()

	integs := make([]calsync.Integration, 0)
	for rows.Next() {
		var integ calsync.Integration
		if err := rows.Scan(&integ.ID, &integ.Provider, &integ.Credentials, &integ.CalendarTarget); err != nil {
			return nil, fmt.Errorf("failed to scan integration: %w", err)
		}
		integs = append(integs, integ)
	}
	return integs, rows.Err()
}

// SyncWatermark returns the start time of the last fully successful push for
// the integration, or nil if it has never synced.
func (s *Store) SyncWatermark(ctx context.Context, integrationID string) (*time.Time, error) {
	var watermark *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT sync_watermark
		FROM calendar_integrations
		WHERE id = $1
	`, integrationID).Scan(&watermark)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("integration %s: %w", integrationID, calsync.ErrIntegrationNotFound)
		}
		return nil, fmt.Errorf("failed to get sync watermark: %w", err)
	}
	return watermark, nil
}

// SetSyncWatermark advances the integration's watermark.
func (s *Store) SetSyncWatermark(ctx context.Context, integrationID string, t time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE calendar_integrations
		SET sync_watermark = $2, updated_at = NOW()
		WHERE id = $1
	`, integrationID, t)
	if err != nil {
		return fmt.Errorf("failed to set sync watermark: %w", err)
	}
	return nil
}

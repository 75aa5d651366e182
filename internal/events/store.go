// Package events provides the local calendar event record store the sync
// executors reconcile pulled provider state against.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bookedby/calendar-service/internal/calsync"
)

// Store reads and writes calendar_events rows.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store backed by the given connection pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// GetEvent returns one event by id, or calsync.ErrEventNotFound.
func (s *Store) GetEvent(ctx context.Context, id string) (*calsync.EventSnapshot, error) {
	var ev calsync.EventSnapshot
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, description, location, start_time, end_time, all_day, status, updated_at
		FROM calendar_events
		WHERE id = $1
	`, id).Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.Location,
		&ev.StartTime, &ev.EndTime, &ev.AllDay, &ev.Status, &ev.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("event %s: %w", id, calsync.ErrEventNotFound)
		}
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return &ev, nil
}

// SaveRemoteEvent upserts a provider-sourced snapshot into the local store.
func (s *Store) SaveRemoteEvent(ctx context.Context, ev calsync.EventSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO calendar_events (id, title, description, location, start_time, end_time, all_day, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			location = EXCLUDED.location,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			all_day = EXCLUDED.all_day,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, ev.ID, ev.Title, ev.Description, ev.Location,
		ev.StartTime, ev.EndTime, ev.AllDay, ev.Status, ev.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

// ListModifiedSince returns local events modified after the given time,
// oldest first.
func (s *Store) ListModifiedSince(ctx context.Context, since time.Time) ([]calsync.EventSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, description, location, start_time, end_time, all_day, status, updated_at
		FROM calendar_events
		WHERE updated_at > $1
		ORDER BY updated_at ASC
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list modified events: %w", err)
	}
	defer rows.Close()

	evs := make([]calsync.EventSnapshot, 0)
	for rows.Next() {
		var ev calsync.EventSnapshot
		if err := rows.Scan(
			&ev.ID, &ev.Title, &ev.Description, &ev.Location,
			&ev.StartTime, &ev.EndTime, &ev.AllDay, &ev.Status, &ev.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		evs = append(evs, ev)
	}
	return evs, rows.Err()
}

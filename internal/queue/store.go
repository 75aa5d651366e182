package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a queue item does not exist.
var ErrNotFound = errors.New("queue item not found")

// EnqueueInput describes a new unit of sync work.
type EnqueueInput struct {
	Operation     Operation
	IntegrationID *string
	Payload       interface{}
	Priority      int
	ScheduledFor  *time.Time
	MaxRetries    int
}

// Store is the durable queue the processor runs against. Implementations must
// make ClaimBatch and MarkProcessing atomic conditional updates so that two
// concurrent processors never claim the same item.
type Store interface {
	Enqueue(ctx context.Context, input EnqueueInput) (string, error)
	ClaimBatch(ctx context.Context, batchSize int) ([]Item, error)
	MarkProcessing(ctx context.Context, id string) (bool, error)
	MarkCompleted(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error
	MarkRetry(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error
	Cancel(ctx context.Context, id string) (bool, error)
	Purge(ctx context.Context, olderThan time.Duration, statuses []Status) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Get(ctx context.Context, id string) (*Item, error)
}

// PGStore is the Postgres-backed queue store over the sync_queue table.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a store backed by the given connection pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

const itemColumns = `id, operation, integration_id, payload, status, priority,
	scheduled_for, retry_count, max_retries, last_error,
	created_at, updated_at, processed_at`

// Enqueue inserts a new pending item. The operation kind is not validated
// here; routing an unknown operation is the dispatcher's concern.
func (s *PGStore) Enqueue(ctx context.Context, input EnqueueInput) (string, error) {
	payload, err := json.Marshal(input.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	maxRetries := 3
	if input.MaxRetries > 0 {
		maxRetries = input.MaxRetries
	}

	var id string
	err = s.pool.QueryRow(ctx, `
		INSERT INTO sync_queue (operation, integration_id, payload, priority, scheduled_for, max_retries)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), $6)
		RETURNING id
	`, string(input.Operation), input.IntegrationID, payload, input.Priority, input.ScheduledFor, maxRetries).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue item: %w", err)
	}
	return id, nil
}

// ClaimBatch atomically moves up to batchSize eligible items from pending to
// processing and returns them. Eligible means pending, due, and under the
// retry budget. FOR UPDATE SKIP LOCKED guarantees at-most-one claim per item
// under concurrent passes. Ordering is priority first, then oldest schedule,
// so urgent overdue work is served first and ties break FIFO within a tier.
func (s *PGStore) ClaimBatch(ctx context.Context, batchSize int) ([]Item, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE sync_queue q
		SET status = 'processing', updated_at = NOW()
		FROM (
			SELECT id FROM sync_queue
			WHERE status = 'pending'
			  AND scheduled_for <= NOW()
			  AND retry_count < max_retries
			ORDER BY priority DESC, scheduled_for ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		) eligible
		WHERE q.id = eligible.id
		RETURNING q.id, q.operation, q.integration_id, q.payload, q.status, q.priority,
			q.scheduled_for, q.retry_count, q.max_retries, q.last_error,
			q.created_at, q.updated_at, q.processed_at
	`, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to claim batch: %w", err)
	}
	defer rows.Close()

	items, err := scanItems(rows)
	if err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the subselect ordering.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority != items[j].Priority {
			return items[i].Priority > items[j].Priority
		}
		return items[i].ScheduledFor.Before(items[j].ScheduledFor)
	})
	return items, nil
}

// MarkProcessing claims a single item. Returns false if the item was not
// eligible (already claimed, not due, or out of budget).
func (s *PGStore) MarkProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1
		  AND status = 'pending'
		  AND scheduled_for <= NOW()
		  AND retry_count < max_retries
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark item processing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCompleted transitions a claimed item to its terminal completed state.
func (s *PGStore) MarkCompleted(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'completed', processed_at = NOW(), last_error = NULL, updated_at = NOW()
		WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("failed to mark item completed: %w", err)
	}
	return nil
}

// MarkFailed transitions an item to its terminal failed state, recording the
// attempt count the item failed at.
func (s *PGStore) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'failed', retry_count = $2, last_error = $3, processed_at = NOW(), updated_at = NOW()
		WHERE id = $1
	`, id, retryCount, errMsg)
	if err != nil {
		return fmt.Errorf("failed to mark item failed: %w", err)
	}
	return nil
}

// MarkRetry reschedules a failed item: back to pending with an incremented
// retry count and an advanced scheduled_for.
func (s *PGStore) MarkRetry(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'pending', retry_count = retry_count + 1,
		    scheduled_for = $2, last_error = $3, updated_at = NOW()
		WHERE id = $1
	`, id, nextAttempt, errMsg)
	if err != nil {
		return fmt.Errorf("failed to reschedule item: %w", err)
	}
	return nil
}

// Cancel moves a pending item to cancelled. Returns false if the item was not
// pending (in-flight and terminal items are left alone).
func (s *PGStore) Cancel(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sync_queue
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to cancel item: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Purge deletes terminal items older than the cutoff. Non-terminal statuses
// in the list are ignored so pending and processing rows can never be purged.
func (s *PGStore) Purge(ctx context.Context, olderThan time.Duration, statuses []Status) (int, error) {
	terminal := make([]string, 0, len(statuses))
	for _, st := range statuses {
		if st.IsTerminal() {
			terminal = append(terminal, string(st))
		}
	}
	if len(terminal) == 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-olderThan)
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sync_queue
		WHERE status = ANY($1)
		  AND COALESCE(processed_at, created_at) < $2
	`, terminal, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge items: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// Stats returns item counts grouped by status and the age of the oldest
// pending item in milliseconds.
func (s *PGStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{CountsByStatus: make(map[Status]int)}

	rows, err := s.pool.Query(ctx, `
		SELECT status, COUNT(*) FROM sync_queue GROUP BY status
	`)
	if err != nil {
		return stats, fmt.Errorf("failed to count items by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.CountsByStatus[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE((EXTRACT(EPOCH FROM (NOW() - MIN(created_at))) * 1000)::bigint, 0)
		FROM sync_queue
		WHERE status = 'pending'
	`).Scan(&stats.OldestPendingAgeMS)
	if err != nil {
		return stats, fmt.Errorf("failed to compute oldest pending age: %w", err)
	}
	return stats, nil
}

// Get returns a single item by id.
func (s *PGStore) Get(ctx context.Context, id string) (*Item, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM sync_queue
		WHERE id = $1
	`, id)

	item, err := scanItem(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

func scanItem(row pgx.Row) (*Item, error) {
	var item Item
	var operation, status string
	err := row.Scan(
		&item.ID, &operation, &item.IntegrationID, &item.Payload, &status, &item.Priority,
		&item.ScheduledFor, &item.RetryCount, &item.MaxRetries, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt, &item.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	item.Operation = Operation(operation)
	item.Status = Status(status)
	return &item, nil
}

func scanItems(rows pgx.Rows) ([]Item, error) {
	items := make([]Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

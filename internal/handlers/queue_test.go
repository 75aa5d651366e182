package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookedby/calendar-service/internal/queue"
)

// stubStore is a scriptable queue.Store covering the handler paths.
type stubStore struct {
	enqueueID    string
	enqueueErr   error
	enqueued     []queue.EnqueueInput
	item         *queue.Item
	getErr       error
	cancelOK     bool
	purgeDeleted int
	purgeArgs    []queue.Status
	stats        queue.Stats
}

func (s *stubStore) Enqueue(ctx context.Context, input queue.EnqueueInput) (string, error) {
	s.enqueued = append(s.enqueued, input)
	return s.enqueueID, s.enqueueErr
}

func (s *stubStore) ClaimBatch(ctx context.Context, batchSize int) ([]queue.Item, error) {
	return nil, nil
}

func (s *stubStore) MarkProcessing(ctx context.Context, id string) (bool, error) { return false, nil }
func (s *stubStore) MarkCompleted(ctx context.Context, id string) error          { return nil }
func (s *stubStore) MarkFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	return nil
}
func (s *stubStore) MarkRetry(ctx context.Context, id string, nextAttempt time.Time, errMsg string) error {
	return nil
}

func (s *stubStore) Cancel(ctx context.Context, id string) (bool, error) {
	return s.cancelOK, nil
}

func (s *stubStore) Purge(ctx context.Context, olderThan time.Duration, statuses []queue.Status) (int, error) {
	s.purgeArgs = statuses
	return s.purgeDeleted, nil
}

func (s *stubStore) Stats(ctx context.Context) (queue.Stats, error) {
	return s.stats, nil
}

func (s *stubStore) Get(ctx context.Context, id string) (*queue.Item, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.item, nil
}

// stubProcessor is a scriptable QueueProcessor.
type stubProcessor struct {
	stats      queue.PassStats
	err        error
	batchSizes []int
	itemIDs    []string
}

func (p *stubProcessor) ProcessQueue(ctx context.Context, batchSize int) (queue.PassStats, error) {
	p.batchSizes = append(p.batchSizes, batchSize)
	return p.stats, p.err
}

func (p *stubProcessor) ProcessItem(ctx context.Context, id string) (queue.PassStats, error) {
	p.itemIDs = append(p.itemIDs, id)
	return p.stats, p.err
}

func newTestRouter(store *stubStore, processor *stubProcessor) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewQueueHandler(store, processor)

	router := gin.New()
	router.POST("/internal/sync/process", handler.ProcessQueue)
	router.GET("/internal/sync/stats", handler.GetStats)
	router.POST("/internal/sync/queue", handler.Enqueue)
	router.DELETE("/internal/sync/queue", handler.Purge)
	router.GET("/internal/sync/queue/:id", handler.GetItem)
	router.POST("/internal/sync/queue/:id/process", handler.ProcessItem)
	router.POST("/internal/sync/queue/:id/cancel", handler.CancelItem)
	return router
}

func TestProcessQueueEndpoint(t *testing.T) {
	processor := &stubProcessor{stats: queue.PassStats{Processed: 4, Succeeded: 3, Retried: 1}}
	router := newTestRouter(&stubStore{}, processor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/process", strings.NewReader(`{"batchSize": 25}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{25}, processor.batchSizes)

	var stats queue.PassStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, processor.stats, stats)
}

func TestProcessQueueEndpointNoBody(t *testing.T) {
	processor := &stubProcessor{}
	router := newTestRouter(&stubStore{}, processor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/process", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []int{0}, processor.batchSizes)
}

func TestProcessQueueEndpointError(t *testing.T) {
	processor := &stubProcessor{err: errors.New("connection refused")}
	router := newTestRouter(&stubStore{}, processor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/process", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "failed to process queue")
}

func TestEnqueueEndpoint(t *testing.T) {
	store := &stubStore{enqueueID: "item-42"}
	router := newTestRouter(store, &stubProcessor{})

	body := `{
		"operation": "create_event",
		"integrationId": "integ-a",
		"payload": {"event": {"id": "evt-1"}},
		"priority": 5,
		"maxRetries": 4
	}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/queue", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var resp EnqueueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "item-42", resp.ID)

	require.Len(t, store.enqueued, 1)
	input := store.enqueued[0]
	assert.Equal(t, queue.OpCreateEvent, input.Operation)
	require.NotNil(t, input.IntegrationID)
	assert.Equal(t, "integ-a", *input.IntegrationID)
	assert.Equal(t, 5, input.Priority)
	assert.Equal(t, 4, input.MaxRetries)
}

func TestEnqueueEndpointMissingOperation(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/queue", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetItemEndpoint(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &stubStore{item: &queue.Item{
		ID:           "item-1",
		Operation:    queue.OpPullChanges,
		Status:       queue.StatusPending,
		ScheduledFor: now,
		MaxRetries:   3,
		CreatedAt:    now,
	}}
	router := newTestRouter(store, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/sync/queue/item-1", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp QueueItemResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "item-1", resp.ID)
	assert.Equal(t, "pull_changes", resp.Operation)
	assert.Equal(t, "pending", resp.Status)
}

func TestGetItemEndpointNotFound(t *testing.T) {
	store := &stubStore{getErr: queue.ErrNotFound}
	router := newTestRouter(store, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/sync/queue/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCancelItemEndpoint(t *testing.T) {
	store := &stubStore{cancelOK: true}
	router := newTestRouter(store, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/queue/item-1/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not pending anymore: conflict.
	store.cancelOK = false
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/internal/sync/queue/item-1/cancel", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestProcessItemEndpointNotFound(t *testing.T) {
	processor := &stubProcessor{err: queue.ErrNotFound}
	router := newTestRouter(&stubStore{}, processor)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/sync/queue/missing/process", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, []string{"missing"}, processor.itemIDs)
}

func TestPurgeEndpoint(t *testing.T) {
	store := &stubStore{purgeDeleted: 12}
	router := newTestRouter(store, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/internal/sync/queue?olderThanDays=30&statuses=completed,cancelled", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp PurgeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.DeletedCount)
	assert.Equal(t, []queue.Status{queue.StatusCompleted, queue.StatusCancelled}, store.purgeArgs)
}

func TestPurgeEndpointRejectsNonTerminal(t *testing.T) {
	router := newTestRouter(&stubStore{}, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/internal/sync/queue?statuses=pending", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/internal/sync/queue?olderThanDays=zero", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatsEndpoint(t *testing.T) {
	store := &stubStore{stats: queue.Stats{
		CountsByStatus:     map[queue.Status]int{queue.StatusPending: 7},
		OldestPendingAgeMS: 90000,
	}}
	router := newTestRouter(store, &stubProcessor{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/internal/sync/stats", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var stats queue.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.CountsByStatus[queue.StatusPending])
	assert.Equal(t, int64(90000), stats.OldestPendingAgeMS)
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/bookedby/calendar-service/internal/queue"
)

// QueueProcessor triggers processing passes. Satisfied by *queue.Processor.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context, batchSize int) (queue.PassStats, error)
	ProcessItem(ctx context.Context, id string) (queue.PassStats, error)
}

// QueueHandler serves the sync queue endpoints.
type QueueHandler struct {
	store     queue.Store
	processor QueueProcessor
}

// NewQueueHandler creates a handler over the given store and processor.
func NewQueueHandler(store queue.Store, processor QueueProcessor) *QueueHandler {
	return &QueueHandler{store: store, processor: processor}
}

// ProcessRequest represents the body for triggering a processing pass
type ProcessRequest struct {
	BatchSize int `json:"batchSize" binding:"min=0,max=100" jsonschema:"minimum=0,maximum=100"`
}

// EnqueueRequest represents the body for enqueueing sync work
type EnqueueRequest struct {
	Operation     string          `json:"operation" binding:"required" jsonschema:"required"`
	IntegrationID *string         `json:"integrationId"`
	Payload       json.RawMessage `json:"payload"`
	Priority      int             `json:"priority" jsonschema:"minimum=0"`
	ScheduledFor  *time.Time      `json:"scheduledFor"`
	MaxRetries    int             `json:"maxRetries" binding:"min=0,max=10" jsonschema:"minimum=0,maximum=10"`
}

// EnqueueResponse represents the response for enqueueing sync work
type EnqueueResponse struct {
	ID string `json:"id" jsonschema:"required"`
}

// PurgeResponse represents the response for purging old items
type PurgeResponse struct {
	DeletedCount int `json:"deletedCount" jsonschema:"required"`
}

// QueueItemResponse represents one queue item
type QueueItemResponse struct {
	ID            string          `json:"id" jsonschema:"required"`
	Operation     string          `json:"operation" jsonschema:"required"`
	IntegrationID *string         `json:"integrationId"`
	Payload       json.RawMessage `json:"payload"`
	Status        string          `json:"status" jsonschema:"required,enum=pending,enum=processing,enum=completed,enum=failed,enum=cancelled"`
	Priority      int             `json:"priority"`
	ScheduledFor  time.Time       `json:"scheduledFor"`
	RetryCount    int             `json:"retryCount"`
	MaxRetries    int             `json:"maxRetries"`
	LastError     *string         `json:"lastError"`
	CreatedAt     time.Time       `json:"createdAt" jsonschema:"required"`
	ProcessedAt   *time.Time      `json:"processedAt"`
}

func itemResponse(item *queue.Item) QueueItemResponse {
	return QueueItemResponse{
		ID:            item.ID,
		Operation:     string(item.Operation),
		IntegrationID: item.IntegrationID,
		Payload:       item.Payload,
		Status:        string(item.Status),
		Priority:      item.Priority,
		ScheduledFor:  item.ScheduledFor,
		RetryCount:    item.RetryCount,
		MaxRetries:    item.MaxRetries,
		LastError:     item.LastError,
		CreatedAt:     item.CreatedAt,
		ProcessedAt:   item.ProcessedAt,
	}
}

// ProcessQueue triggers one processing pass over the sync queue
// @Summary Run a queue processing pass
// @Description Claims a bounded batch of eligible items, dispatches each one and returns pass statistics
// @Tags sync
// @Accept json
// @Produce json
// @Param request body ProcessRequest false "Pass options"
// @Success 200 {object} queue.PassStats
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/sync/process [post]
func (h *QueueHandler) ProcessQueue(c *gin.Context) {
	var req ProcessRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	stats, err := h.processor.ProcessQueue(c.Request.Context(), req.BatchSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to process queue: %v", err)})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ProcessItem processes a single queue item by id
// @Summary Process one queue item
// @Tags sync
// @Produce json
// @Param id path string true "Queue item id"
// @Success 200 {object} queue.PassStats
// @Failure 404 {object} map[string]string "Item not found"
// @Failure 409 {object} map[string]string "Item not eligible"
// @Router /internal/sync/queue/{id}/process [post]
func (h *QueueHandler) ProcessItem(c *gin.Context) {
	stats, err := h.processor.ProcessItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "queue item not found"})
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Enqueue adds a new item to the sync queue
// @Summary Enqueue sync work
// @Tags sync
// @Accept json
// @Produce json
// @Param request body EnqueueRequest true "Item to enqueue"
// @Success 201 {object} EnqueueResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/sync/queue [post]
func (h *QueueHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, err := h.store.Enqueue(c.Request.Context(), queue.EnqueueInput{
		Operation:     queue.Operation(req.Operation),
		IntegrationID: req.IntegrationID,
		Payload:       req.Payload,
		Priority:      req.Priority,
		ScheduledFor:  req.ScheduledFor,
		MaxRetries:    req.MaxRetries,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to enqueue item: %v", err)})
		return
	}
	c.JSON(http.StatusCreated, EnqueueResponse{ID: id})
}

// GetItem returns one queue item by id
// @Summary Get a queue item
// @Tags sync
// @Produce json
// @Param id path string true "Queue item id"
// @Success 200 {object} QueueItemResponse
// @Failure 404 {object} map[string]string "Item not found"
// @Router /internal/sync/queue/{id} [get]
func (h *QueueHandler) GetItem(c *gin.Context) {
	item, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "queue item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, itemResponse(item))
}

// CancelItem cancels a pending queue item
// @Summary Cancel a queue item
// @Tags sync
// @Produce json
// @Param id path string true "Queue item id"
// @Success 200 {object} map[string]string
// @Failure 409 {object} map[string]string "Item not pending"
// @Router /internal/sync/queue/{id}/cancel [post]
func (h *QueueHandler) CancelItem(c *gin.Context) {
	cancelled, err := h.store.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "item is not pending"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

// GetStats returns aggregate queue health
// @Summary Queue statistics
// @Tags sync
// @Produce json
// @Success 200 {object} queue.Stats
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/sync/stats [get]
func (h *QueueHandler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Purge deletes old terminal queue items
// @Summary Purge old queue items
// @Description Deletes completed, failed or cancelled items older than the cutoff. Pending and processing items are never touched.
// @Tags sync
// @Produce json
// @Param olderThanDays query int false "Age cutoff in days" default(7) minimum(1)
// @Param statuses query string false "Comma-separated terminal statuses" default(completed,failed,cancelled)
// @Success 200 {object} PurgeResponse
// @Failure 400 {object} map[string]string "Bad request"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /internal/sync/queue [delete]
func (h *QueueHandler) Purge(c *gin.Context) {
	olderThanDays := 7
	if raw := c.Query("olderThanDays"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "olderThanDays must be a positive integer"})
			return
		}
		olderThanDays = parsed
	}

	rawStatuses := c.DefaultQuery("statuses", "completed,failed,cancelled")
	statuses := make([]queue.Status, 0)
	for _, raw := range strings.Split(rawStatuses, ",") {
		status := queue.Status(strings.TrimSpace(raw))
		if !status.IsValid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown status %q", status)})
			return
		}
		if !status.IsTerminal() {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("status %q cannot be purged", status)})
			return
		}
		statuses = append(statuses, status)
	}

	deleted, err := h.store.Purge(c.Request.Context(), time.Duration(olderThanDays)*24*time.Hour, statuses)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to purge items: %v", err)})
		return
	}
	c.JSON(http.StatusOK, PurgeResponse{DeletedCount: deleted})
}

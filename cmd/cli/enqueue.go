package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookedby/calendar-service/internal/database"
	"github.com/bookedby/calendar-service/internal/queue"
)

var (
	enqueueIntegration  string
	enqueuePayload      string
	enqueuePriority     int
	enqueueScheduledFor string
	enqueueMaxRetries   int
)

// enqueueCmd represents the enqueue command
var enqueueCmd = &cobra.Command{
	Use:   "enqueue <operation>",
	Short: "Add an item to the sync queue",
	Long: `Add a sync operation to the queue. The payload is operation-specific JSON
and is validated when the item is processed, not when it is enqueued.`,
	Example: `  calendar-service enqueue pull_changes
  calendar-service enqueue push_changes --integration 7d9e1a2b-...
  calendar-service enqueue create_event --payload '{"event":{"id":"evt-1","title":"Standup"}}' --priority 5`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	enqueueCmd.Flags().StringVar(&enqueueIntegration, "integration", "", "Target integration id")
	enqueueCmd.Flags().StringVar(&enqueuePayload, "payload", "", "Operation payload as JSON")
	enqueueCmd.Flags().IntVar(&enqueuePriority, "priority", 0, "Priority (higher first)")
	enqueueCmd.Flags().StringVar(&enqueueScheduledFor, "scheduled-for", "", "Earliest processing time (RFC 3339, defaults to now)")
	enqueueCmd.Flags().IntVar(&enqueueMaxRetries, "max-retries", 0, "Retry budget (defaults to 3)")
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	op := queue.Operation(args[0])
	if !op.IsValid() {
		valid := make([]string, 0, len(queue.ValidOperations))
		for known := range queue.ValidOperations {
			valid = append(valid, string(known))
		}
		return fmt.Errorf("invalid operation: %s\nValid operations: %s", op, strings.Join(valid, ", "))
	}

	input := queue.EnqueueInput{
		Operation:  op,
		Priority:   enqueuePriority,
		MaxRetries: enqueueMaxRetries,
	}
	if enqueueIntegration != "" {
		input.IntegrationID = &enqueueIntegration
	}
	if enqueuePayload != "" {
		if !json.Valid([]byte(enqueuePayload)) {
			return fmt.Errorf("payload is not valid JSON")
		}
		input.Payload = json.RawMessage(enqueuePayload)
	}
	if enqueueScheduledFor != "" {
		scheduledFor, err := time.Parse(time.RFC3339, enqueueScheduledFor)
		if err != nil {
			return fmt.Errorf("invalid --scheduled-for value: %w", err)
		}
		input.ScheduledFor = &scheduledFor
	}

	store := queue.NewPGStore(database.Pool())
	id, err := store.Enqueue(context.Background(), input)
	if err != nil {
		return fmt.Errorf("failed to enqueue item: %w", err)
	}

	fmt.Printf("Enqueued %s as %s\n", op, id)
	return nil
}

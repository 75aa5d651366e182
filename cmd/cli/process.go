package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bookedby/calendar-service/internal/calsync"
	"github.com/bookedby/calendar-service/internal/database"
	"github.com/bookedby/calendar-service/internal/events"
	"github.com/bookedby/calendar-service/internal/integrations"
	"github.com/bookedby/calendar-service/internal/providers"
	"github.com/bookedby/calendar-service/internal/queue"
)

var (
	processBatchSize int
	processItemID    string
)

// processCmd represents the process command
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run one queue processing pass",
	Long: `Claim a batch of eligible sync queue items and process each one. Items that
fail are rescheduled with exponential backoff until their retry budget is
exhausted.`,
	Example: `  calendar-service process
  calendar-service process --batch-size 25
  calendar-service process --item 4f7c2f9e-6b1a-4d2e-9c3f-8a5b6c7d8e9f`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().IntVar(&processBatchSize, "batch-size", 0, "Maximum items to claim (defaults to configured batch size)")
	processCmd.Flags().StringVar(&processItemID, "item", "", "Process a single queue item by id")
}

// buildProcessor wires the full dispatch stack over the shared database pool.
func buildProcessor() (*queue.Processor, queue.Store) {
	store := queue.NewPGStore(database.Pool())
	integrationStore := integrations.New(database.Pool())
	eventStore := events.New(database.Pool())

	registry := providers.NewRegistry()
	webhookClient := providers.NewWebhookClient(providers.WebhookConfig{
		Timeout:           cfg.Provider.PushTimeout,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		BurstSize:         cfg.Provider.BurstSize,
	}, logger)
	registry.Register("webhook", webhookClient)
	registry.Register("outlook", webhookClient)

	dispatcher := queue.NewDispatcher(logger)
	executor := calsync.NewExecutor(integrationStore, registry, eventStore, store, logger, calsync.ExecutorConfig{
		PushTimeout: cfg.Provider.PushTimeout,
		PullTimeout: cfg.Provider.PullTimeout,
	})
	executor.Register(dispatcher)

	processor := queue.NewProcessor(store, dispatcher, logger, queue.ProcessorConfig{
		BatchSize: cfg.Queue.BatchSize,
	})
	return processor, store
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	processor, _ := buildProcessor()

	if processItemID != "" {
		stats, err := processor.ProcessItem(ctx, processItemID)
		if err != nil {
			return fmt.Errorf("failed to process item %s: %w", processItemID, err)
		}
		printPassStats(stats)
		return nil
	}

	stats, err := processor.ProcessQueue(ctx, processBatchSize)
	if err != nil {
		return fmt.Errorf("failed to process queue: %w", err)
	}
	printPassStats(stats)
	return nil
}

func printPassStats(stats queue.PassStats) {
	fmt.Printf("Processed: %d\n", stats.Processed)
	fmt.Printf("Succeeded: %d\n", stats.Succeeded)
	fmt.Printf("Failed:    %d\n", stats.Failed)
	fmt.Printf("Retried:   %d\n", stats.Retried)
}

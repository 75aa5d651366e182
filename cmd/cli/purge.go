package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookedby/calendar-service/internal/database"
	"github.com/bookedby/calendar-service/internal/queue"
)

var (
	purgeOlderThanDays int
	purgeStatuses      string
)

// purgeCmd represents the purge command
var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete old terminal queue items",
	Long: `Delete completed, failed, or cancelled queue items older than the cutoff.
Pending and processing items are never deleted.`,
	Example: `  calendar-service purge
  calendar-service purge --older-than-days 30
  calendar-service purge --statuses completed`,
	RunE: runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().IntVar(&purgeOlderThanDays, "older-than-days", 7, "Age cutoff in days")
	purgeCmd.Flags().StringVar(&purgeStatuses, "statuses", "completed,failed,cancelled", "Comma-separated terminal statuses to purge")
}

func runPurge(cmd *cobra.Command, args []string) error {
	if purgeOlderThanDays < 1 {
		return fmt.Errorf("--older-than-days must be at least 1")
	}

	var statuses []queue.Status
	for _, raw := range strings.Split(purgeStatuses, ",") {
		status := queue.Status(strings.TrimSpace(raw))
		if !status.IsValid() || !status.IsTerminal() {
			return fmt.Errorf("status %q cannot be purged", status)
		}
		statuses = append(statuses, status)
	}

	store := queue.NewPGStore(database.Pool())
	deleted, err := store.Purge(
		context.Background(),
		time.Duration(purgeOlderThanDays)*24*time.Hour,
		statuses,
	)
	if err != nil {
		return fmt.Errorf("failed to purge items: %w", err)
	}

	fmt.Printf("Deleted %d items\n", deleted)
	return nil
}

package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/bookedby/calendar-service/internal/database"
	"github.com/bookedby/calendar-service/internal/queue"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show sync queue health",
	Long:  `Print item counts per status and the age of the oldest pending item.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	store := queue.NewPGStore(database.Pool())
	stats, err := store.Stats(context.Background())
	if err != nil {
		return fmt.Errorf("failed to fetch queue stats: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, status := range []queue.Status{
		queue.StatusPending,
		queue.StatusProcessing,
		queue.StatusCompleted,
		queue.StatusFailed,
		queue.StatusCancelled,
	} {
		fmt.Fprintf(w, "%s\t%d\n", status, stats.CountsByStatus[status])
	}
	w.Flush()

	if stats.OldestPendingAgeMS > 0 {
		age := time.Duration(stats.OldestPendingAgeMS) * time.Millisecond
		fmt.Printf("\nOldest pending item: %s\n", age.Round(time.Second))
	}
	return nil
}

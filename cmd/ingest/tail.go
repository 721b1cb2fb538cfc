package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

var tailCmd = &cobra.Command{
	Use:   "tail <job-id>",
	Short: "Show a job's per-file audit log",
	Long: `Display the audit trail for a job: one line per file with its outcome,
reason, and processing time. With --follow, keep watching for new results
while the job runs.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]
		follow, _ := cmd.Flags().GetBool("follow")
		limit, _ := cmd.Flags().GetInt("limit")
		statusFilter, _ := cmd.Flags().GetString("status")

		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		store, err := openStorage(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		filter := storage.LogFilter{Limit: limit}
		if statusFilter != "" {
			filter.Status = types.LogStatus(statusFilter)
			if !filter.Status.IsValid() {
				fatalf("unknown log status %q", statusFilter)
			}
		}

		if follow {
			runTailFollow(context.Background(), store, jobID, filter)
		} else {
			runTailOnce(context.Background(), store, jobID, filter)
		}
	},
}

func init() {
	tailCmd.Flags().BoolP("follow", "f", false, "Keep watching for new results (Ctrl+C to stop)")
	tailCmd.Flags().IntP("limit", "n", 0, "Maximum entries to show (0 = all)")
	tailCmd.Flags().String("status", "", "Filter by outcome: succeeded, failed, skipped, duplicate")
	rootCmd.AddCommand(tailCmd)
}

func runTailOnce(ctx context.Context, store storage.Storage, jobID string, filter storage.LogFilter) {
	logs, err := store.ListLogs(ctx, jobID, filter)
	if err != nil {
		fatalf("failed to list logs: %v", err)
	}
	if len(logs) == 0 {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Printf("%s\n", gray("No log entries"))
		return
	}
	for _, entry := range logs {
		displayLog(entry)
	}
}

// runTailFollow polls for newly finalized entries every two seconds until
// the job reaches a terminal state or the user interrupts.
func runTailFollow(ctx context.Context, store storage.Storage, jobID string, filter storage.LogFilter) {
	seen := make(map[string]bool)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		logs, err := store.ListLogs(ctx, jobID, filter)
		if err != nil {
			fatalf("failed to list logs: %v", err)
		}
		for _, entry := range logs {
			if seen[entry.ID] || !entry.Status.IsFinal() {
				continue
			}
			seen[entry.ID] = true
			displayLog(entry)
		}

		job, err := store.GetJob(ctx, jobID)
		if err != nil {
			fatalf("failed to get job: %v", err)
		}
		if job.Status.IsTerminal() {
			fmt.Printf("\nJob %s\n", job.Status)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func displayLog(entry *types.ImportLog) {
	gray := color.New(color.FgHiBlack).SprintFunc()

	var icon string
	switch entry.Status {
	case types.LogSucceeded:
		icon = color.GreenString("✓")
	case types.LogDuplicate:
		icon = color.YellowString("≡")
	case types.LogSkipped:
		icon = color.YellowString("−")
	case types.LogFailed:
		icon = color.RedString("✗")
	default:
		icon = gray("○")
	}

	line := fmt.Sprintf("%s %-10s %s", icon, entry.Status, entry.SourcePath)
	if entry.Reason != "" {
		line += gray("  " + entry.Reason)
	}
	if entry.DurationMS > 0 {
		line += gray(fmt.Sprintf("  (%dms)", entry.DurationMS))
	}
	fmt.Println(line)
}

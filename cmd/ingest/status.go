package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Show one job's progress and audit summary",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		store, err := openStorage(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		ctx := context.Background()
		job, err := store.GetJob(ctx, args[0])
		if err != nil {
			fatalf("failed to get job: %v", err)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		fmt.Printf("\n%s\n", cyan("=== Job "+job.ID+" ==="))
		fmt.Printf("Status:  %s %s\n", statusIcon(job.Status), statusColor(job.Status)(string(job.Status)))
		fmt.Printf("Source:  %s (%s)\n", job.SourcePath, job.SourceType)
		fmt.Printf("Created: %s\n", job.CreatedAt.Local().Format(time.RFC1123))
		if job.StartedAt != nil {
			fmt.Printf("Started: %s\n", job.StartedAt.Local().Format(time.RFC1123))
		}
		if job.CompletedAt != nil {
			fmt.Printf("Finished: %s (took %s)\n",
				job.CompletedAt.Local().Format(time.RFC1123),
				durationBetween(job.StartedAt, job.CompletedAt))
		} else if job.EstimatedDone != nil {
			fmt.Printf("ETA:     %s\n", job.EstimatedDone.Local().Format(time.Kitchen))
		}
		if job.ErrorMessage != "" {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Printf("Error:   %s\n", red(job.ErrorMessage))
		}

		fmt.Printf("\nProgress: %s\n", progressBar(job.FilesProcessed, job.TotalFiles, 30))
		fmt.Printf("  Scanned:   %d\n", job.FilesScanned)
		fmt.Printf("  Processed: %d / %d\n", job.FilesProcessed, job.TotalFiles)
		fmt.Printf("  Succeeded: %d\n", job.FilesSucceeded)
		fmt.Printf("  Skipped:   %d\n", job.FilesSkipped)
		fmt.Printf("  Failed:    %d\n", job.FilesFailed)

		summary, err := store.LogSummary(ctx, job.ID)
		if err == nil && summary.Total > 0 {
			yellow := color.New(color.FgYellow).SprintFunc()
			fmt.Printf("\n%s\n", yellow("Audit summary:"))
			for _, st := range []types.LogStatus{types.LogSucceeded, types.LogDuplicate, types.LogSkipped, types.LogFailed, types.LogProcessing, types.LogPending} {
				if n := summary.ByStatus[st]; n > 0 {
					fmt.Printf("  %-11s %d\n", string(st)+":", n)
				}
			}
			fmt.Printf("  bytes:      %d\n", summary.TotalBytes)
			if summary.AvgDurationMS > 0 {
				fmt.Printf("  avg time:   %dms/file\n", summary.AvgDurationMS)
			}
		}
		fmt.Println()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// progressBar renders "[=====>    ] 12/30" with the given bar width.
func progressBar(done, total, width int) string {
	if total <= 0 {
		return fmt.Sprintf("%d files", done)
	}
	filled := done * width / total
	if filled > width {
		filled = width
	}
	bar := ""
	for i := 0; i < width; i++ {
		switch {
		case i < filled:
			bar += "="
		case i == filled && done < total:
			bar += ">"
		default:
			bar += " "
		}
	}
	return fmt.Sprintf("[%s] %d/%d", bar, done, total)
}

func durationBetween(start, end *time.Time) string {
	if start == nil || end == nil {
		return "unknown"
	}
	return end.Sub(*start).Round(time.Second).String()
}

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

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List import jobs",
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

		filter := storage.JobFilter{}
		if s, _ := cmd.Flags().GetString("status"); s != "" {
			filter.Status = types.JobStatus(s)
			if !filter.Status.IsValid() {
				fatalf("unknown job status %q", s)
			}
		}
		filter.Limit, _ = cmd.Flags().GetInt("limit")

		jobs, err := store.ListJobs(context.Background(), filter)
		if err != nil {
			fatalf("failed to list jobs: %v", err)
		}

		if len(jobs) == 0 {
			gray := color.New(color.FgHiBlack).SprintFunc()
			fmt.Printf("%s\n", gray("No jobs"))
			return
		}

		for _, job := range jobs {
			fmt.Printf("%s %s  %s\n", statusIcon(job.Status), job.ID, statusColor(job.Status)(string(job.Status)))
			fmt.Printf("    %s  %d/%d files  %s\n",
				job.SourcePath, job.FilesProcessed, job.TotalFiles,
				job.CreatedAt.Local().Format(time.RFC822))
		}
	},
}

func init() {
	jobsCmd.Flags().String("status", "", "Filter by status")
	jobsCmd.Flags().Int("limit", 20, "Maximum jobs to show")
	rootCmd.AddCommand(jobsCmd)
}

func statusIcon(s types.JobStatus) string {
	switch s {
	case types.JobProcessing, types.JobScanning:
		return color.GreenString("●")
	case types.JobCompleted:
		return color.GreenString("✓")
	case types.JobPaused:
		return color.YellowString("⏸")
	case types.JobFailed:
		return color.RedString("✗")
	case types.JobCancelled:
		return color.YellowString("✗")
	default:
		return "○"
	}
}

func statusColor(s types.JobStatus) func(a ...interface{}) string {
	switch s {
	case types.JobCompleted, types.JobProcessing, types.JobScanning:
		return color.New(color.FgGreen).SprintFunc()
	case types.JobPaused, types.JobCancelled:
		return color.New(color.FgYellow).SprintFunc()
	case types.JobFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

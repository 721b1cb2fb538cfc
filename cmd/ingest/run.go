package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run <path>",
	Short: "Import a folder or archive of design files",
	Long: `Create an import job for the given path and process it to completion.

The path is scanned, files are grouped into projects, each file is
fingerprinted and checked against known designs, and new files are uploaded
and recorded. Press Ctrl+C to pause; resume later with 'ingest resume'.

With --at the job is only registered; a running 'ingest serve' picks it up
when the scheduled time passes.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sourcePath := args[0]

		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		opts := cfg.Defaults
		applyOptionFlags(cmd, &opts)

		sourceType := types.SourceFolder
		if t, _ := cmd.Flags().GetString("type"); t != "" {
			sourceType = types.SourceType(t)
			if !sourceType.IsValid() {
				fatalf("unknown source type %q (want folder or archive)", t)
			}
		}

		var scheduledAt *time.Time
		if at, _ := cmd.Flags().GetString("at"); at != "" {
			parsed, err := time.Parse(time.RFC3339, at)
			if err != nil {
				fatalf("invalid --at time (want RFC3339, e.g. 2026-09-01T02:00:00Z): %v", err)
			}
			scheduledAt = &parsed
		}

		store, err := openStorage(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		// Ctrl+C pauses the job instead of killing it mid-item.
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, err := buildOrchestrator(ctx, cfg, store)
		if err != nil {
			fatalf("%v", err)
		}

		job, err := orch.CreateJob(ctx, sourceType, sourcePath, opts, scheduledAt)
		if err != nil {
			fatalf("failed to create job: %v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created job %s\n", green("✓"), job.ID)

		if scheduledAt != nil {
			fmt.Printf("  Scheduled for %s\n", scheduledAt.Local().Format(time.RFC1123))
			return
		}

		if err := orch.Run(ctx, job.ID); err != nil {
			if ctx.Err() != nil {
				yellow := color.New(color.FgYellow).SprintFunc()
				fmt.Printf("\n%s Interrupted, resume with: ingest resume %s\n", yellow("⏸"), job.ID)
				return
			}
			fatalf("job %s failed: %v", job.ID, err)
		}

		final, err := store.GetJob(context.Background(), job.ID)
		if err != nil {
			fatalf("failed to read job result: %v", err)
		}
		printJobOutcome(final)
	},
}

func init() {
	runCmd.Flags().String("type", "", "Source type: folder or archive (default folder)")
	runCmd.Flags().String("at", "", "Schedule the job for a future RFC3339 time instead of running now")
	addOptionFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

// addOptionFlags registers per-job processing option overrides.
func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Int("concurrency", 0, "Worker count (default from config)")
	cmd.Flags().Int("max-retries", -1, "Retries per file before giving up")
	cmd.Flags().Int("similarity", 0, "Near-duplicate similarity floor, 0-100")
	cmd.Flags().Bool("exact-only", false, "Skip perceptual matching, exact hash duplicates only")
	cmd.Flags().Bool("no-duplicates", false, "Disable duplicate detection entirely")
	cmd.Flags().Bool("no-projects", false, "Disable multi-file project detection")
	cmd.Flags().Bool("no-previews", false, "Do not upload preview sidecars")
	cmd.Flags().Bool("no-ai", false, "Skip AI metadata, derive titles from filenames")
	cmd.Flags().Bool("auto-publish", false, "Make imported designs public immediately")
	cmd.Flags().Bool("skip-failed", false, "Record exhausted files as skipped instead of failing them")
}

func applyOptionFlags(cmd *cobra.Command, opts *types.ProcessingOptions) {
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		opts.Concurrency = n
	}
	if n, _ := cmd.Flags().GetInt("max-retries"); n >= 0 {
		opts.MaxRetries = n
	}
	if n, _ := cmd.Flags().GetInt("similarity"); n > 0 {
		opts.SimilarityThreshold = n
	}
	if v, _ := cmd.Flags().GetBool("exact-only"); v {
		opts.ExactOnly = true
	}
	if v, _ := cmd.Flags().GetBool("no-duplicates"); v {
		opts.DetectDuplicates = false
	}
	if v, _ := cmd.Flags().GetBool("no-projects"); v {
		opts.DetectProjects = false
	}
	if v, _ := cmd.Flags().GetBool("no-previews"); v {
		opts.GeneratePreviews = false
	}
	if v, _ := cmd.Flags().GetBool("no-ai"); v {
		opts.GenerateAIMetadata = false
	}
	if v, _ := cmd.Flags().GetBool("auto-publish"); v {
		opts.AutoPublish = true
	}
	if v, _ := cmd.Flags().GetBool("skip-failed"); v {
		opts.SkipFailedFiles = true
	}
}

// printJobOutcome prints the final counters with a status-colored verdict.
func printJobOutcome(job *types.ImportJob) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	switch job.Status {
	case types.JobCompleted:
		fmt.Printf("\n%s Import complete\n", green("✓"))
	case types.JobPaused:
		fmt.Printf("\n%s Import paused, resume with: ingest resume %s\n", yellow("⏸"), job.ID)
	case types.JobCancelled:
		fmt.Printf("\n%s Import cancelled\n", yellow("✗"))
	default:
		fmt.Printf("\n%s Import %s", red("✗"), job.Status)
		if job.ErrorMessage != "" {
			fmt.Printf(": %s", job.ErrorMessage)
		}
		fmt.Println()
	}

	fmt.Printf("  Scanned:   %d\n", job.FilesScanned)
	fmt.Printf("  Processed: %d\n", job.FilesProcessed)
	fmt.Printf("  Succeeded: %d\n", job.FilesSucceeded)
	fmt.Printf("  Skipped:   %d (duplicates included)\n", job.FilesSkipped)
	if job.FilesFailed > 0 {
		fmt.Printf("  Failed:    %s\n", red(fmt.Sprintf("%d", job.FilesFailed)))
	}
}

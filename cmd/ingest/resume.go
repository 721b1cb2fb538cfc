package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume a paused job",
	Long: `Resume a paused job in the foreground. Files stuck in processing from a
crashed run are reclaimed and retried; completed files are never redone.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		jobID := args[0]

		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}
		store, err := openStorage(cfg)
		if err != nil {
			fatalf("%v", err)
		}
		defer store.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, err := buildOrchestrator(ctx, cfg, store)
		if err != nil {
			fatalf("%v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Resuming job %s\n", green("✓"), jobID)

		if err := orch.Resume(ctx, jobID); err != nil {
			if ctx.Err() != nil {
				yellow := color.New(color.FgYellow).SprintFunc()
				fmt.Printf("\n%s Interrupted, resume again with: ingest resume %s\n", yellow("⏸"), jobID)
				return
			}
			fatalf("failed to resume job: %v", err)
		}

		final, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			fatalf("failed to read job result: %v", err)
		}
		printJobOutcome(final)
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/storage"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <job-id>",
	Short: "Pause a processing job",
	Long: `Mark a processing job paused. Workers stop picking up new files; files
already in flight finish and are counted. Resume with 'ingest resume'.`,
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

		orch, err := buildOrchestrator(context.Background(), cfg, store)
		if err != nil {
			fatalf("%v", err)
		}

		if err := orch.Pause(context.Background(), jobID); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				fatalf("job %s is not processing", jobID)
			}
			fatalf("failed to pause job: %v", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Job paused: %s\n", green("✓"), jobID)
		fmt.Printf("\nTo resume: ingest resume %s\n", jobID)
	},
}

func init() {
	rootCmd.AddCommand(pauseCmd)
}

package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job permanently",
	Long: `Cancel a job in any non-terminal state. Files already imported stay in
the catalog; a cancelled job cannot be resumed.`,
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

		if err := orch.Cancel(context.Background(), jobID); err != nil {
			fatalf("failed to cancel job: %v", err)
		}

		yellow := color.New(color.FgYellow).SprintFunc()
		fmt.Printf("%s Job cancelled: %s\n", yellow("✗"), jobID)
	},
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

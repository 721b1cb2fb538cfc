package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/cluster"
	"github.com/carvelab/ingest/internal/scanner"
	"github.com/carvelab/ingest/internal/types"
)

var scanCmd = &cobra.Command{
	Use:   "scan <path>",
	Short: "Preview what an import would do, without importing",
	Long: `Scan a folder or archive and show the detected projects: which files
group together, why, and with what confidence. Nothing is written.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig()
		if err != nil {
			fatalf("%v", err)
		}

		sourceType := types.SourceFolder
		if t, _ := cmd.Flags().GetString("type"); t != "" {
			sourceType = types.SourceType(t)
		}

		src, err := scanner.ForJob(sourceType, args[0])
		if err != nil {
			fatalf("%v", err)
		}

		files, err := src.Scan(context.Background())
		if err != nil {
			fatalf("scan failed: %v", err)
		}

		ccfg := cluster.DefaultConfig()
		ccfg.CrossFolder = cfg.Defaults.CrossFolder
		ccfg.ConfidenceThreshold = cfg.Defaults.ConfidenceThreshold
		projects := cluster.New(ccfg).Detect(files)

		printScanPreview(files, projects)
	},
}

func init() {
	scanCmd.Flags().String("type", "", "Source type: folder or archive (default folder)")
	rootCmd.AddCommand(scanCmd)
}

func printScanPreview(files []types.ScannedFile, projects []types.DetectedProject) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	importable := 0
	for _, f := range files {
		if scanner.SupportedExtensions[f.Extension] {
			importable++
		}
	}

	fmt.Printf("\n%s\n", cyan("=== Scan Preview ==="))
	fmt.Printf("Files found: %d (%d importable)\n\n", len(files), importable)

	if len(projects) == 0 {
		fmt.Printf("%s\n", gray("No projects detected"))
		return
	}

	sorted := make([]types.DetectedProject, len(projects))
	copy(sorted, projects)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	multi := 0
	for _, p := range sorted {
		if len(p.Files) > 1 {
			multi++
		}
	}
	fmt.Printf("%s %d total, %d multi-file\n\n", yellow("Projects:"), len(sorted), multi)

	for _, p := range sorted {
		fmt.Printf("  %s  %s\n", p.Name, gray(fmt.Sprintf("(%s, %.0f%%)", p.Reason, p.Confidence*100)))
		for _, f := range p.Files {
			marker := " "
			if p.PrimaryFile != nil && f.Path == p.PrimaryFile.Path {
				marker = "*"
			}
			fmt.Printf("    %s %s\n", marker, f.Path)
		}
	}
	fmt.Printf("\n%s\n", gray("* primary file"))
}

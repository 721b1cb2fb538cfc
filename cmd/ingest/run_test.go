package main

import (
	"reflect"
	"testing"

	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/types"
)

func TestApplyOptionFlags(t *testing.T) {
	cmd := &cobra.Command{}
	addOptionFlags(cmd)
	if err := cmd.Flags().Parse([]string{
		"--concurrency", "8",
		"--max-retries", "0",
		"--no-ai",
		"--exact-only",
		"--skip-failed",
	}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	opts := types.DefaultProcessingOptions()
	applyOptionFlags(cmd, &opts)

	if opts.Concurrency != 8 {
		t.Errorf("Concurrency = %d, want 8", opts.Concurrency)
	}
	if opts.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", opts.MaxRetries)
	}
	if opts.GenerateAIMetadata {
		t.Error("GenerateAIMetadata still set")
	}
	if !opts.ExactOnly {
		t.Error("ExactOnly not set")
	}
	if !opts.SkipFailedFiles {
		t.Error("SkipFailedFiles not set")
	}
	// Untouched flags keep the defaults
	if !opts.DetectDuplicates || !opts.DetectProjects {
		t.Error("defaults were clobbered")
	}
}

func TestApplyOptionFlagsLeavesDefaultsWhenUnset(t *testing.T) {
	cmd := &cobra.Command{}
	addOptionFlags(cmd)
	if err := cmd.Flags().Parse(nil); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	opts := types.DefaultProcessingOptions()
	applyOptionFlags(cmd, &opts)

	if !reflect.DeepEqual(opts, types.DefaultProcessingOptions()) {
		t.Errorf("options changed with no flags: %+v", opts)
	}
}

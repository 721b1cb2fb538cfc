// ingest is the design ingestion pipeline CLI: scan folders or archives of
// CNC/laser design files, group them into projects, de-duplicate, upload,
// and track everything in a durable job database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/carvelab/ingest/internal/blobstore"
	"github.com/carvelab/ingest/internal/config"
	"github.com/carvelab/ingest/internal/orchestrator"
	"github.com/carvelab/ingest/internal/preview"
	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/storage/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Design file ingestion pipeline",
	Long: `ingest imports folders or archives of design files (SVG, DXF, AI, EPS,
PDF, CDR) into the design catalog.

Files are scanned, clustered into multi-file projects, fingerprinted for
exact and near-duplicate detection, uploaded to blob storage, and recorded
with a per-file audit trail. Jobs are durable: a paused or crashed run
resumes from where it left off.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".ingest/ingest.yaml", "Path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file named by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openStorage opens the job database from config.
func openStorage(cfg *config.Config) (storage.Storage, error) {
	store, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.DatabasePath, err)
	}
	return store, nil
}

// openBlobs builds the configured blob backend.
func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return blobstore.NewS3Store(ctx, cfg.Storage.S3)
	default:
		return blobstore.NewLocalStore(cfg.Storage.LocalRoot)
	}
}

// buildOrchestrator wires storage, blobs, and the metadata generator. AI
// metadata needs an API key; without one the filename fallback is used.
func buildOrchestrator(ctx context.Context, cfg *config.Config, store storage.Storage) (*orchestrator.Orchestrator, error) {
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open blob storage: %w", err)
	}

	var metadata preview.Generator
	if cfg.Anthropic.APIKey != "" {
		mcfg := preview.DefaultConfig()
		mcfg.APIKey = cfg.Anthropic.APIKey
		if cfg.Anthropic.Model != "" {
			mcfg.Model = cfg.Anthropic.Model
		}
		if cfg.Anthropic.MaxConcurrentCalls > 0 {
			mcfg.MaxConcurrentCalls = cfg.Anthropic.MaxConcurrentCalls
		}
		if cfg.Anthropic.RequestsPerSecond > 0 {
			mcfg.RequestsPerSecond = cfg.Anthropic.RequestsPerSecond
		}
		metadata, err = preview.NewVisionGenerator(mcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create metadata generator: %w", err)
		}
	}

	return orchestrator.New(&orchestrator.Config{
		Store:    store,
		Blobs:    blobs,
		Metadata: metadata,
	})
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

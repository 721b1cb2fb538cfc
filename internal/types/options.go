package types

import "fmt"

// ProcessingOptions is an immutable configuration snapshot attached to a job
// at creation. Later changes to pipeline defaults never affect a running job.
type ProcessingOptions struct {
	GeneratePreviews   bool `json:"generate_previews" yaml:"generate_previews"`
	GenerateAIMetadata bool `json:"generate_ai_metadata" yaml:"generate_ai_metadata"`
	AutoPublish        bool `json:"auto_publish" yaml:"auto_publish"`

	// Duplicate detection
	DetectDuplicates    bool `json:"detect_duplicates" yaml:"detect_duplicates"`
	SimilarityThreshold int  `json:"similarity_threshold" yaml:"similarity_threshold"` // 0-100, near-duplicate floor
	ExactOnly           bool `json:"exact_only" yaml:"exact_only"`

	// Project detection
	DetectProjects      bool    `json:"detect_projects" yaml:"detect_projects"`
	CrossFolder         bool    `json:"cross_folder" yaml:"cross_folder"`
	ConfidenceThreshold float64 `json:"confidence_threshold" yaml:"confidence_threshold"` // 0.0-1.0

	// Execution
	Concurrency        int  `json:"concurrency" yaml:"concurrency"`
	CheckpointInterval int  `json:"checkpoint_interval" yaml:"checkpoint_interval"` // completed items between checkpoints
	MaxRetries         int  `json:"max_retries" yaml:"max_retries"`
	SkipFailedFiles    bool `json:"skip_failed_files" yaml:"skip_failed_files"` // finalize exhausted items as skipped instead of failed

	// PreviewPriority orders preview source types from most to least preferred.
	PreviewPriority []string `json:"preview_priority,omitempty" yaml:"preview_priority"`
}

// DefaultProcessingOptions returns the pipeline defaults
func DefaultProcessingOptions() ProcessingOptions {
	return ProcessingOptions{
		GeneratePreviews:    true,
		GenerateAIMetadata:  true,
		AutoPublish:         false,
		DetectDuplicates:    true,
		SimilarityThreshold: 84, // ~10 differing bits on a 64-bit phash
		ExactOnly:           false,
		DetectProjects:      true,
		CrossFolder:         true,
		ConfidenceThreshold: 0.7,
		Concurrency:         5,
		CheckpointInterval:  10,
		MaxRetries:          3,
		SkipFailedFiles:     false,
		PreviewPriority:     []string{"sidecar", "generated"},
	}
}

// Validate checks option ranges and fills zero values with defaults where a
// zero value is never meaningful.
func (o *ProcessingOptions) Validate() error {
	if o.SimilarityThreshold < 0 || o.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity_threshold must be between 0 and 100 (got %d)", o.SimilarityThreshold)
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0.0 and 1.0 (got %g)", o.ConfidenceThreshold)
	}
	if o.Concurrency < 0 {
		return fmt.Errorf("concurrency cannot be negative")
	}
	if o.Concurrency == 0 {
		o.Concurrency = 5
	}
	if o.CheckpointInterval < 0 {
		return fmt.Errorf("checkpoint_interval cannot be negative")
	}
	if o.CheckpointInterval == 0 {
		o.CheckpointInterval = 10
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}
	return nil
}

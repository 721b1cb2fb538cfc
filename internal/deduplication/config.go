package deduplication

import "fmt"

// Config controls duplicate classification for one job.
type Config struct {
	// Enabled turns duplicate detection on. When false, Resolve always
	// classifies items as new content.
	Enabled bool

	// ExactOnly disables perceptual-hash comparison; only byte-identical
	// content is classified duplicate.
	ExactOnly bool

	// SimilarityThreshold is the near-duplicate floor as a 0-100 percentage.
	// A candidate must score at least this similarity to classify as a near
	// duplicate.
	SimilarityThreshold int
}

// DefaultConfig returns sensible deduplication defaults
func DefaultConfig() Config {
	return Config{
		Enabled:             true,
		ExactOnly:           false,
		SimilarityThreshold: 84, // matches DefaultHammingThreshold on 64-bit hashes
	}
}

// Validate checks config ranges
func (c Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 100 {
		return fmt.Errorf("similarity threshold must be between 0 and 100 (got %d)", c.SimilarityThreshold)
	}
	return nil
}

package deduplication

import (
	"context"
	"fmt"
)

// MatchType distinguishes byte-identical from visually-similar duplicates.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchNear  MatchType = "near"
)

// Match describes the existing file a candidate duplicates.
type Match struct {
	Type       MatchType `json:"type"`
	FileID     string    `json:"file_id"`   // existing design file
	DesignID   string    `json:"design_id"` // design the file belongs to
	Hash       string    `json:"hash"`      // the matched hash (content or perceptual)
	Distance   int       `json:"distance"`  // Hamming distance; 0 for exact matches
	Similarity int       `json:"similarity"`
}

// KnownFile is a previously ingested file in the index.
type KnownFile struct {
	FileID      string
	DesignID    string
	ContentHash string
	Phash       string
}

// Index is the known-hash lookup the resolver reads. Implementations must be
// safe for concurrent readers; new admissions during a job must become
// visible to subsequent lookups.
type Index interface {
	// FindByContentHash returns the known file with this exact content hash,
	// or nil when none exists.
	FindByContentHash(ctx context.Context, hash string) (*KnownFile, error)

	// PhashCandidates returns every known file carrying a perceptual hash.
	PhashCandidates(ctx context.Context) ([]KnownFile, error)
}

// Resolver classifies candidate files against the known-hash index.
type Resolver struct {
	index Index
	cfg   Config
}

// NewResolver creates a resolver over the given index
func NewResolver(index Index, cfg Config) (*Resolver, error) {
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid deduplication config: %w", err)
	}
	return &Resolver{index: index, cfg: cfg}, nil
}

// Resolve classifies a candidate by its content hash and optional perceptual
// hash. It returns nil when the candidate is new content.
//
// An exact content-hash match wins outright (similarity 100) without
// consulting perceptual hashes. Otherwise, unless ExactOnly is set, the best
// perceptual match at or above the similarity threshold is returned.
func (r *Resolver) Resolve(ctx context.Context, contentHash, phash string) (*Match, error) {
	if !r.cfg.Enabled {
		return nil, nil
	}
	if contentHash == "" {
		return nil, fmt.Errorf("content hash is required")
	}

	existing, err := r.index.FindByContentHash(ctx, contentHash)
	if err != nil {
		return nil, fmt.Errorf("exact duplicate lookup failed: %w", err)
	}
	if existing != nil {
		return &Match{
			Type:       MatchExact,
			FileID:     existing.FileID,
			DesignID:   existing.DesignID,
			Hash:       contentHash,
			Distance:   0,
			Similarity: 100,
		}, nil
	}

	if r.cfg.ExactOnly || phash == "" {
		return nil, nil
	}

	known, err := r.index.PhashCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("perceptual candidate lookup failed: %w", err)
	}

	candidates := make([]HashCandidate, 0, len(known))
	byID := make(map[string]KnownFile, len(known))
	for _, k := range known {
		candidates = append(candidates, HashCandidate{ID: k.FileID, Hash: k.Phash})
		byID[k.FileID] = k
	}

	// Bit budget: the largest distance whose rounded similarity still meets
	// the floor. Similarity rounds half away from zero, so a distance d
	// passes when 100*(1 - d/totalBits) >= threshold - 0.5.
	totalBits := 4 * len(phash)
	maxDistance := totalBits * (2*(100-r.cfg.SimilarityThreshold) + 1) / 200

	matches := FindSimilarHashes(phash, candidates, maxDistance)
	for _, m := range matches {
		if m.Similarity < r.cfg.SimilarityThreshold {
			continue
		}
		k := byID[m.ID]
		return &Match{
			Type:       MatchNear,
			FileID:     k.FileID,
			DesignID:   k.DesignID,
			Hash:       m.Hash,
			Distance:   m.Distance,
			Similarity: m.Similarity,
		}, nil
	}
	return nil, nil
}

package deduplication

import (
	"context"
	"sync"
)

// MemoryIndex is a read-heavy in-memory hash index. It is seeded from the
// persistence layer when a job starts and receives each newly admitted
// file's hashes, so a file cannot be admitted twice within one run.
//
// Safe for concurrent use. This is the fast path only; the storage layer's
// unique constraint on content_hash remains the authoritative gate.
type MemoryIndex struct {
	mu      sync.RWMutex
	byHash  map[string]KnownFile
	phashed []KnownFile
}

// NewMemoryIndex creates an index seeded with the given known files
func NewMemoryIndex(seed []KnownFile) *MemoryIndex {
	idx := &MemoryIndex{
		byHash: make(map[string]KnownFile, len(seed)),
	}
	for _, k := range seed {
		idx.add(k)
	}
	return idx
}

// Add records a newly admitted file so later lookups in the same job see it.
func (idx *MemoryIndex) Add(k KnownFile) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(k)
}

func (idx *MemoryIndex) add(k KnownFile) {
	if k.ContentHash != "" {
		if _, exists := idx.byHash[k.ContentHash]; !exists {
			idx.byHash[k.ContentHash] = k
		}
	}
	if k.Phash != "" {
		idx.phashed = append(idx.phashed, k)
	}
}

// FindByContentHash implements Index
func (idx *MemoryIndex) FindByContentHash(_ context.Context, hash string) (*KnownFile, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if k, ok := idx.byHash[hash]; ok {
		return &k, nil
	}
	return nil, nil
}

// PhashCandidates implements Index
func (idx *MemoryIndex) PhashCandidates(_ context.Context) ([]KnownFile, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]KnownFile, len(idx.phashed))
	copy(out, idx.phashed)
	return out, nil
}

// Len returns the number of distinct content hashes in the index
func (idx *MemoryIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byHash)
}

package deduplication

import (
	"context"
	"testing"
)

func testIndex() *MemoryIndex {
	return NewMemoryIndex([]KnownFile{
		{FileID: "file-1", DesignID: "design-1", ContentHash: "aaaa", Phash: "0000000000000000"},
		{FileID: "file-2", DesignID: "design-2", ContentHash: "bbbb", Phash: "ffffffffffffffff"},
		{FileID: "file-3", DesignID: "design-3", ContentHash: "cccc"}, // no phash
	})
}

func TestResolveExactDuplicate(t *testing.T) {
	r, err := NewResolver(testIndex(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	match, err := r.Resolve(context.Background(), "aaaa", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match == nil {
		t.Fatal("expected exact match, got nil")
	}
	if match.Type != MatchExact {
		t.Errorf("match type = %s, want exact", match.Type)
	}
	if match.Similarity != 100 {
		t.Errorf("exact match similarity = %d, want 100", match.Similarity)
	}
	if match.FileID != "file-1" || match.DesignID != "design-1" {
		t.Errorf("wrong target: %s/%s", match.FileID, match.DesignID)
	}
}

func TestResolveNearDuplicate(t *testing.T) {
	r, err := NewResolver(testIndex(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// 8 bits from file-1's phash: similarity 88, above the 84 floor
	match, err := r.Resolve(context.Background(), "dddd", "ff00000000000000")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match == nil {
		t.Fatal("expected near match, got nil")
	}
	if match.Type != MatchNear {
		t.Errorf("match type = %s, want near", match.Type)
	}
	if match.Similarity != 88 {
		t.Errorf("similarity = %d, want 88", match.Similarity)
	}
	if match.FileID != "file-1" {
		t.Errorf("matched %s, want file-1", match.FileID)
	}
}

func TestResolveThresholdBoundary(t *testing.T) {
	// A candidate whose rounded similarity lands exactly on the floor must
	// match; one bit further out must not.
	cfg := DefaultConfig()
	cfg.SimilarityThreshold = 88
	r, err := NewResolver(testIndex(), cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	ctx := context.Background()

	// 8 of 64 bits differ from file-1's phash: similarity exactly 88
	match, err := r.Resolve(ctx, "dddd", "ff00000000000000")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match == nil {
		t.Fatal("similarity 88 should match a floor of 88, got nil")
	}
	if match.Similarity != 88 || match.Distance != 8 {
		t.Errorf("match = similarity %d distance %d, want 88/8", match.Similarity, match.Distance)
	}

	// 9 bits differ: similarity 86, below the floor
	match, err = r.Resolve(ctx, "dddd", "ff80000000000000")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match != nil {
		t.Errorf("similarity below the floor should not match, got %+v", match)
	}
}

func TestResolveNewContent(t *testing.T) {
	r, err := NewResolver(testIndex(), DefaultConfig())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// f0f0... is 32 bits from both known phashes: similarity 50
	match, err := r.Resolve(context.Background(), "dddd", "f0f0f0f0f0f0f0f0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match != nil {
		t.Errorf("expected new content, got %+v", match)
	}
}

func TestResolveExactOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExactOnly = true
	r, err := NewResolver(testIndex(), cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	// Near-identical phash, but exact-only mode ignores it
	match, err := r.Resolve(context.Background(), "dddd", "0000000000000001")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match != nil {
		t.Errorf("exact-only mode should not report near duplicates, got %+v", match)
	}
}

func TestResolveDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	r, err := NewResolver(testIndex(), cfg)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	match, err := r.Resolve(context.Background(), "aaaa", "0000000000000000")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match != nil {
		t.Errorf("disabled resolver should classify everything as new, got %+v", match)
	}
}

func TestMemoryIndexVisibility(t *testing.T) {
	idx := NewMemoryIndex(nil)
	r, err := NewResolver(idx, DefaultConfig())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	ctx := context.Background()
	match, err := r.Resolve(ctx, "eeee", "1111111111111111")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match != nil {
		t.Fatalf("empty index should report new content, got %+v", match)
	}

	// Admit the file; the same bytes must now classify duplicate within the run
	idx.Add(KnownFile{FileID: "file-9", DesignID: "design-9", ContentHash: "eeee", Phash: "1111111111111111"})

	match, err = r.Resolve(ctx, "eeee", "1111111111111111")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if match == nil || match.Type != MatchExact {
		t.Fatalf("newly admitted hash should be visible as exact duplicate, got %+v", match)
	}
}

// Package deduplication classifies incoming files against the known-hash
// index as new, exact duplicates, or near duplicates.
//
// Exact duplicates are byte-identical: the SHA-256 content hash matches an
// existing design file. Near duplicates are visually similar: the perceptual
// hash of the file's preview is within a Hamming-distance threshold of an
// existing preview's hash.
//
// The in-memory index is a fast-path optimization only. The authoritative
// de-duplication gate is the storage layer's unique constraint on
// content_hash, which closes the race between two workers admitting the same
// bytes concurrently.
package deduplication

package deduplication

import (
	"math"
	"math/bits"
	"sort"
)

// DefaultHammingThreshold is the default near-duplicate cutoff for 64-bit
// perceptual hashes: 10 differing bits, roughly an 84% similarity floor.
const DefaultHammingThreshold = 10

// HammingDistance returns the number of differing bits between two
// equal-length hex strings, counted per 4-bit nibble. The second return is
// false when the hashes are incomparable: either string empty, lengths
// differing, or a non-hex character present.
func HammingDistance(a, b string) (int, bool) {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0, false
	}

	distance := 0
	for i := 0; i < len(a); i++ {
		na, ok := hexNibble(a[i])
		if !ok {
			return 0, false
		}
		nb, ok := hexNibble(b[i])
		if !ok {
			return 0, false
		}
		distance += bits.OnesCount8(na ^ nb)
	}
	return distance, true
}

func hexNibble(c byte) (uint8, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// CalculateSimilarity converts the Hamming distance between two hashes to a
// 0-100 percentage. Incomparable hashes score 0.
func CalculateSimilarity(a, b string) int {
	distance, ok := HammingDistance(a, b)
	if !ok {
		return 0
	}
	totalBits := 4 * len(a)
	return int(math.Round((1 - float64(distance)/float64(totalBits)) * 100))
}

// IsSimilar reports whether two hashes are within threshold differing bits.
// Incomparable hashes are never similar.
func IsSimilar(a, b string, threshold int) bool {
	distance, ok := HammingDistance(a, b)
	return ok && distance <= threshold
}

// HashCandidate is one known hash to compare a target against.
type HashCandidate struct {
	ID   string
	Hash string
}

// SimilarHash is one candidate that matched within the threshold.
type SimilarHash struct {
	ID         string
	Hash       string
	Distance   int
	Similarity int // 0-100
}

// FindSimilarHashes returns the candidates whose Hamming distance from
// target is within threshold, sorted by descending similarity. Candidates
// with empty hashes are dropped before comparison.
func FindSimilarHashes(target string, candidates []HashCandidate, threshold int) []SimilarHash {
	var matches []SimilarHash
	for _, c := range candidates {
		if c.Hash == "" {
			continue
		}
		distance, ok := HammingDistance(target, c.Hash)
		if !ok || distance > threshold {
			continue
		}
		matches = append(matches, SimilarHash{
			ID:         c.ID,
			Hash:       c.Hash,
			Distance:   distance,
			Similarity: CalculateSimilarity(target, c.Hash),
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	return matches
}

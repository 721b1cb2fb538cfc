// Package fingerprint computes the two hashes duplicate detection runs on:
// an exact SHA-256 content hash and, for anything decodable as an image, a
// 64-bit perceptual hash capturing coarse visual appearance.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"io"

	// Preview decoders: the original library stores previews as png, jpeg
	// or webp.
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"
)

// PhashHexLen is the hex width of a 64-bit perceptual hash.
const PhashHexLen = 16

// Fingerprint carries both hashes for one file. Phash is empty when no
// preview was available or decoding failed.
type Fingerprint struct {
	ContentHash string `json:"content_hash"`
	Phash       string `json:"phash,omitempty"`
}

// ContentHash returns the hex-encoded SHA-256 of data.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentHashReader hashes a stream without buffering it in memory.
func ContentHashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// PerceptualHash decodes an image and returns its DCT perceptual hash as 16
// hex characters.
func PerceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to decode image: %w", err)
	}
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("failed to compute perceptual hash: %w", err)
	}
	return fmt.Sprintf("%0*x", PhashHexLen, hash.GetHash()), nil
}

// Compute fingerprints a design file. The perceptual hash is taken from the
// preview bytes when present and is best effort: a preview that cannot be
// decoded leaves Phash empty rather than failing the fingerprint.
func Compute(design, preview []byte) Fingerprint {
	fp := Fingerprint{ContentHash: ContentHash(design)}
	if len(preview) > 0 {
		if phash, err := PerceptualHash(preview); err == nil {
			fp.Phash = phash
		}
	}
	return fp
}

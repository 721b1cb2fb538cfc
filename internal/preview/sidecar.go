// Package preview finds preview images shipped next to design files and
// extracts catalog metadata from them.
package preview

import (
	"io"
	"path"
	"strings"
)

// imageExtensions in probe order. Matches the sidecar formats the pipeline
// can perceptually hash.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// Opener reads one source file by scan-relative path.
type Opener interface {
	Open(path string) (io.ReadCloser, error)
}

// Sidecar is a preview image found next to a design file.
type Sidecar struct {
	Path      string
	Extension string
	Data      []byte
}

// ContentType returns the MIME type for the sidecar's extension.
func (s *Sidecar) ContentType() string {
	switch s.Extension {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	}
	return "application/octet-stream"
}

// candidatePaths lists the conventional sidecar locations for a design file,
// most specific first: <stem>.<img>, <stem>_preview, <stem>-preview, and a
// previews/ subfolder.
func candidatePaths(designPath string) []string {
	dir := path.Dir(designPath)
	base := path.Base(designPath)
	stem := strings.TrimSuffix(base, path.Ext(base))

	stems := []string{
		path.Join(dir, stem),
		path.Join(dir, stem+"_preview"),
		path.Join(dir, stem+"-preview"),
		path.Join(dir, "previews", stem),
	}

	var candidates []string
	for _, s := range stems {
		for _, ext := range imageExtensions {
			candidates = append(candidates, s+ext)
		}
	}
	return candidates
}

// FindSidecar probes the conventional preview locations for a design file and
// returns the first image that exists. Returns nil when no sidecar is found.
func FindSidecar(opener Opener, designPath string) (*Sidecar, error) {
	for _, candidate := range candidatePaths(designPath) {
		rc, err := opener.Open(candidate)
		if err != nil {
			continue // absence is the common case
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, err
		}
		return &Sidecar{
			Path:      candidate,
			Extension: path.Ext(candidate),
			Data:      data,
		}, nil
	}
	return nil, nil
}

// Package scanner enumerates design files from an import source: a local
// directory tree, a zip archive, or an already-uploaded file list. It
// produces the ordered ScannedFile list the clusterer and orchestrator
// consume, and serves the raw bytes of each file for hashing.
package scanner

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/carvelab/ingest/internal/types"
)

// SupportedExtensions are the design file types the pipeline ingests.
var SupportedExtensions = map[string]bool{
	".svg": true,
	".dxf": true,
	".ai":  true,
	".eps": true,
	".pdf": true,
	".cdr": true,
}

// PreviewExtensions are raster formats accepted as preview sidecars.
var PreviewExtensions = []string{".png", ".jpg", ".jpeg", ".webp"}

// manifestBasenames are non-design files kept in scan results so project
// detection can use them as grouping manifests.
var manifestBasenames = map[string]bool{
	"readme":   true,
	"manifest": true,
	"about":    true,
	"info":     true,
	"metadata": true,
}

// Source is one enumerable, readable origin of import files.
type Source interface {
	// Scan returns the source's design files in deterministic order.
	Scan(ctx context.Context) ([]types.ScannedFile, error)

	// Open returns the bytes of one scanned file by its scan-relative path.
	Open(path string) (io.ReadCloser, error)
}

// ForJob selects the Source implementation for a job's source type.
func ForJob(sourceType types.SourceType, sourcePath string) (Source, error) {
	switch sourceType {
	case types.SourceFolder:
		return NewDirSource(sourcePath), nil
	case types.SourceArchive:
		return NewZipSource(sourcePath), nil
	default:
		return nil, fmt.Errorf("no scanner for source type %q", sourceType)
	}
}

// shouldInclude reports whether a scan keeps this filename.
func shouldInclude(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	if SupportedExtensions[ext] {
		return true
	}
	base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	if !manifestBasenames[base] {
		return false
	}
	switch ext {
	case "", ".txt", ".md", ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// newScannedFile builds the ScannedFile for a scan-relative path.
func newScannedFile(relPath string, size int64) types.ScannedFile {
	relPath = filepath.ToSlash(relPath)
	folder := "."
	if i := strings.LastIndex(relPath, "/"); i >= 0 {
		folder = relPath[:i]
	}
	name := relPath[strings.LastIndex(relPath, "/")+1:]
	return types.ScannedFile{
		Path:      relPath,
		Name:      name,
		SizeBytes: size,
		Extension: strings.ToLower(filepath.Ext(name)),
		Folder:    folder,
	}
}

// finalize dedupes case-colliding paths (case-insensitive filesystems report
// both spellings) and sorts for deterministic output.
func finalize(files []types.ScannedFile) []types.ScannedFile {
	seen := make(map[string]bool, len(files))
	out := files[:0]
	for _, f := range files {
		key := strings.ToLower(f.Path)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// DirSource scans a local directory tree.
type DirSource struct {
	root string
}

// NewDirSource creates a directory source rooted at root
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// Scan walks the tree and returns every supported file, sorted by path.
func (s *DirSource) Scan(ctx context.Context) ([]types.ScannedFile, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("source directory unreadable: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path is not a directory: %s", s.root)
	}

	var files []types.ScannedFile
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !shouldInclude(d.Name()) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("failed to relativize %s: %w", path, err)
		}
		files = append(files, newScannedFile(rel, fi.Size()))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("directory scan failed: %w", err)
	}
	return finalize(files), nil
}

// Open returns the bytes of one file under the scan root.
func (s *DirSource) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, filepath.FromSlash(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to open source file %s: %w", path, err)
	}
	return f, nil
}

// UploadSource serves files already staged by a direct upload: a fixed list
// backed by an opener (usually the blob store).
type UploadSource struct {
	files  []types.ScannedFile
	opener func(path string) (io.ReadCloser, error)
}

// NewUploadSource creates a source over pre-staged files
func NewUploadSource(files []types.ScannedFile, opener func(path string) (io.ReadCloser, error)) *UploadSource {
	return &UploadSource{files: files, opener: opener}
}

// Scan returns the staged file list, filtered and sorted like a directory scan.
func (s *UploadSource) Scan(_ context.Context) ([]types.ScannedFile, error) {
	var files []types.ScannedFile
	for _, f := range s.files {
		if shouldInclude(f.Name) {
			files = append(files, f)
		}
	}
	return finalize(files), nil
}

// Open returns the staged bytes for one path.
func (s *UploadSource) Open(path string) (io.ReadCloser, error) {
	return s.opener(path)
}

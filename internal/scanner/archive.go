package scanner

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/carvelab/ingest/internal/types"
)

// ZipSource scans a zip archive without extracting it.
type ZipSource struct {
	path string
}

// NewZipSource creates an archive source for the zip at path
func NewZipSource(path string) *ZipSource {
	return &ZipSource{path: path}
}

// Scan lists the archive's supported entries, sorted by path.
func (s *ZipSource) Scan(ctx context.Context) ([]types.ScannedFile, error) {
	r, err := zip.OpenReader(s.path)
	if err != nil {
		return nil, fmt.Errorf("source archive unreadable: %w", err)
	}
	defer func() { _ = r.Close() }()

	var files []types.ScannedFile
	for _, entry := range r.File {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if entry.FileInfo().IsDir() || !shouldInclude(entry.FileInfo().Name()) {
			continue
		}
		// macOS zips ship resource-fork shadows
		if strings.HasPrefix(entry.Name, "__MACOSX/") {
			continue
		}
		files = append(files, newScannedFile(entry.Name, int64(entry.UncompressedSize64)))
	}
	return finalize(files), nil
}

// Open returns the decompressed bytes of one archive entry.
func (s *ZipSource) Open(path string) (io.ReadCloser, error) {
	r, err := zip.OpenReader(s.path)
	if err != nil {
		return nil, fmt.Errorf("source archive unreadable: %w", err)
	}
	for _, entry := range r.File {
		if entry.Name == path {
			rc, err := entry.Open()
			if err != nil {
				_ = r.Close()
				return nil, fmt.Errorf("failed to open archive entry %s: %w", path, err)
			}
			return &archiveEntry{ReadCloser: rc, archive: r}, nil
		}
	}
	_ = r.Close()
	return nil, fmt.Errorf("archive entry not found: %s", path)
}

// archiveEntry closes the backing archive together with the entry reader.
type archiveEntry struct {
	io.ReadCloser
	archive *zip.ReadCloser
}

func (e *archiveEntry) Close() error {
	err := e.ReadCloser.Close()
	if cerr := e.archive.Close(); err == nil {
		err = cerr
	}
	return err
}

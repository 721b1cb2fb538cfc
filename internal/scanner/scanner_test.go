package scanner

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/carvelab/ingest/internal/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestDirSourceScan(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "coasters/celtic.svg", "<svg/>")
	writeFile(t, root, "coasters/celtic.dxf", "dxf")
	writeFile(t, root, "coasters/readme.txt", "notes")
	writeFile(t, root, "signs/deep/nested/farmhouse.pdf", "pdf")
	writeFile(t, root, "ignored.docx", "nope")
	writeFile(t, root, "thumbs.png", "raster previews are not design files")

	files, err := NewDirSource(root).Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}

	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	want := []string{
		"coasters/celtic.dxf",
		"coasters/celtic.svg",
		"coasters/readme.txt",
		"signs/deep/nested/farmhouse.pdf",
	}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	if !sort.StringsAreSorted(paths) {
		t.Errorf("scan output is not sorted: %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %s, want %s", i, paths[i], want[i])
		}
	}

	// Field extraction
	for _, f := range files {
		if f.Path == "signs/deep/nested/farmhouse.pdf" {
			if f.Folder != "signs/deep/nested" {
				t.Errorf("folder = %s", f.Folder)
			}
			if f.Extension != ".pdf" {
				t.Errorf("extension = %s", f.Extension)
			}
			if f.SizeBytes != 3 {
				t.Errorf("size = %d", f.SizeBytes)
			}
		}
	}
}

func TestDirSourceScanMissingRoot(t *testing.T) {
	_, err := NewDirSource("/nonexistent/designs").Scan(context.Background())
	if err == nil {
		t.Error("expected error for missing source directory")
	}
}

func TestDirSourceOpen(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a/logo.svg", "<svg>logo</svg>")

	src := NewDirSource(root)
	rc, err := src.Open("a/logo.svg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(data) != "<svg>logo</svg>" {
		t.Errorf("read %q", data)
	}
}

func TestZipSource(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(root, "designs.zip")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	for name, content := range map[string]string{
		"pack/star.svg":        "<svg/>",
		"pack/star.dxf":        "dxf",
		"pack/preview.png":     "png",
		"__MACOSX/pack/._star": "junk",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	src := NewZipSource(archivePath)
	files, err := src.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(files), files)
	}

	rc, err := src.Open("pack/star.svg")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	_ = rc.Close()
	if string(data) != "<svg/>" {
		t.Errorf("read %q", data)
	}
}

func TestShouldInclude(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"design.svg", true},
		{"design.SVG", true},
		{"design.dxf", true},
		{"vector.eps", true},
		{"readme.txt", true},
		{"README.md", true},
		{"manifest.json", true},
		{"preview.png", false},
		{"document.docx", false},
		{"notes.txt", false}, // txt without a manifest basename
		{"LICENSE", false},
	}
	for _, tt := range tests {
		if got := shouldInclude(tt.name); got != tt.want {
			t.Errorf("shouldInclude(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestFinalizeCaseInsensitiveDedupe(t *testing.T) {
	in := []types.ScannedFile{
		newScannedFile("Designs/Logo.svg", 1),
		newScannedFile("designs/logo.svg", 1),
		newScannedFile("other/box.dxf", 1),
	}
	out := finalize(in)
	if len(out) != 2 {
		t.Fatalf("got %d files after dedupe, want 2: %+v", len(out), out)
	}
	if out[0].Path != "Designs/Logo.svg" || out[1].Path != "other/box.dxf" {
		t.Errorf("unexpected result: %+v", out)
	}
}

package cluster

import (
	"strings"

	"github.com/carvelab/ingest/internal/types"
)

// DefaultExtensionPriority orders extensions from most to least preferred
// when choosing a project's primary file. 2D vector formats lead because the
// preview pipeline renders them directly.
var DefaultExtensionPriority = []string{
	".svg", ".stl", ".obj", ".gltf", ".glb", ".3mf",
	".dxf", ".ai", ".eps", ".pdf", ".cdr",
}

// SelectPrimaryFile picks the file that represents a multi-file project.
//
// Selection order: a file named "main" or "primary" (or ending in "-main"),
// then the best rank in the extension priority list. Extensions absent from
// the list sort last; ties keep input order. Returns nil for an empty list.
func SelectPrimaryFile(files []types.ScannedFile, priority []string) *types.ScannedFile {
	if len(files) == 0 {
		return nil
	}
	if len(priority) == 0 {
		priority = DefaultExtensionPriority
	}

	for i := range files {
		base := strings.ToLower(files[i].BaseName())
		if base == "main" || base == "primary" || strings.HasSuffix(base, "-main") {
			return &files[i]
		}
	}

	rank := func(ext string) int {
		for i, p := range priority {
			if strings.EqualFold(ext, p) {
				return i
			}
		}
		return len(priority) // unknown extensions sort last
	}

	best := 0
	bestRank := rank(files[0].Extension)
	for i := 1; i < len(files); i++ {
		if r := rank(files[i].Extension); r < bestRank {
			best, bestRank = i, r
		}
	}
	return &files[best]
}

// DetermineFileRole classifies a member file relative to the project's
// primary file. With no designated primary every file is primary. A file
// sharing the primary's base name under a different extension is a variant;
// any other member is a component.
func DetermineFileRole(file types.ScannedFile, primary *types.ScannedFile, _ []types.ScannedFile) types.FileRole {
	if primary == nil {
		return types.RolePrimary
	}
	if file.Path == primary.Path {
		return types.RolePrimary
	}
	if strings.EqualFold(file.BaseName(), primary.BaseName()) {
		return types.RoleVariant
	}
	return types.RoleComponent
}

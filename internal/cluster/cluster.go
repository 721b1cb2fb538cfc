// Package cluster groups a flat list of scanned files into detected
// projects: one logical design made of several files.
//
// Detection is an ordered chain of heuristic rules, first match wins per
// file group: manifest, variant, layer/part, shared prefix, cross-folder
// type organization, folder fallback, and finally singleton projects. Every
// input file lands in exactly one project.
package cluster

import (
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/carvelab/ingest/internal/types"
)

// Rule confidences. Manifest grouping is definitive; the rest degrade in
// specificity down the chain.
const (
	confidenceManifest          = 1.0
	confidenceManifestAmbiguous = 0.8
	confidenceVariant           = 0.95
	confidenceLayer             = 0.85
	confidencePrefix            = 0.8
	confidenceCrossFolder       = 0.9
	confidenceFolder            = 0.9
	confidenceSingleton         = 1.0
)

// Config controls project detection for one scan.
type Config struct {
	// CrossFolder enables grouping matching basenames across sibling folders
	// that are each uniform in one file type.
	CrossFolder bool

	// ConfidenceThreshold splits multi-file projects detected below this
	// confidence back into singletons.
	ConfidenceThreshold float64

	// ExtensionPriority overrides DefaultExtensionPriority for primary file
	// selection.
	ExtensionPriority []string
}

// DefaultConfig returns the detection defaults
func DefaultConfig() Config {
	return Config{
		CrossFolder:         true,
		ConfidenceThreshold: 0.7,
	}
}

// Clusterer runs the detection chain.
type Clusterer struct {
	cfg Config
}

// New creates a clusterer
func New(cfg Config) *Clusterer {
	return &Clusterer{cfg: cfg}
}

// Detect groups files into projects. Every input file belongs to exactly one
// returned project; an empty input yields an empty result.
func (c *Clusterer) Detect(files []types.ScannedFile) []types.DetectedProject {
	if len(files) == 0 {
		return []types.DetectedProject{}
	}

	st := newDetectState(files)

	// Ordered rule chain. Cross-folder must run before the folder fallback
	// claims its files; when both are valid, cross-folder wins.
	c.detectManifest(st)
	c.detectVariants(st)
	c.detectLayers(st)
	c.detectPrefixes(st)
	if c.cfg.CrossFolder {
		c.detectCrossFolder(st)
	}
	c.detectFolders(st)
	c.detectSingletons(st)

	projects := c.applyConfidenceThreshold(st.projects)
	for i := range projects {
		projects[i].ID = uuid.NewString()
		projects[i].PrimaryFile = SelectPrimaryFile(projects[i].Files, c.cfg.ExtensionPriority)
	}
	return projects
}

// detectState tracks which files each rule has already claimed while
// preserving input order for deterministic output.
type detectState struct {
	files    []types.ScannedFile
	claimed  map[string]bool // keyed by ScannedFile.Path
	folders  []string        // in first-appearance order
	projects []types.DetectedProject
}

func newDetectState(files []types.ScannedFile) *detectState {
	st := &detectState{
		files:   files,
		claimed: make(map[string]bool, len(files)),
	}
	seen := make(map[string]bool)
	for _, f := range files {
		if !seen[f.Folder] {
			seen[f.Folder] = true
			st.folders = append(st.folders, f.Folder)
		}
	}
	return st
}

// remaining returns the unclaimed files of one folder, in input order.
func (st *detectState) remaining(folder string) []types.ScannedFile {
	var out []types.ScannedFile
	for _, f := range st.files {
		if f.Folder == folder && !st.claimed[f.Path] {
			out = append(out, f)
		}
	}
	return out
}

func (st *detectState) claim(name string, files []types.ScannedFile, reason types.DetectionReason, confidence float64) {
	for _, f := range files {
		st.claimed[f.Path] = true
	}
	st.projects = append(st.projects, types.DetectedProject{
		Name:       name,
		Files:      files,
		Reason:     reason,
		Confidence: confidence,
	})
}

// manifestNames are the generic basenames treated as project manifests.
var manifestNames = map[string]bool{
	"readme":   true,
	"manifest": true,
	"about":    true,
	"info":     true,
	"metadata": true,
}

func isManifest(f types.ScannedFile) bool {
	return manifestNames[strings.ToLower(f.BaseName())]
}

// detectManifest claims every file in a folder that carries a manifest file,
// named after the folder. A lone manifest is unambiguous (confidence 1.0);
// multiple manifests in one folder degrade the confidence.
func (c *Clusterer) detectManifest(st *detectState) {
	for _, folder := range st.folders {
		files := st.remaining(folder)
		manifests := 0
		for _, f := range files {
			if isManifest(f) {
				manifests++
			}
		}
		if manifests == 0 || len(files) < 2 {
			continue
		}
		confidence := confidenceManifest
		if manifests > 1 {
			confidence = confidenceManifestAmbiguous
		}
		st.claim(humanizeFolder(folder), files, types.ReasonManifest, confidence)
	}
}

// detectVariants claims same-folder files sharing an identical base name
// under different extensions.
func (c *Clusterer) detectVariants(st *detectState) {
	for _, folder := range st.folders {
		files := st.remaining(folder)
		groups := make(map[string][]types.ScannedFile)
		var order []string
		for _, f := range files {
			key := strings.ToLower(f.BaseName())
			if key == "" {
				continue
			}
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], f)
		}
		for _, key := range order {
			group := groups[key]
			if len(group) < 2 {
				continue
			}
			st.claim(Humanize(group[0].BaseName()), group, types.ReasonVariant, confidenceVariant)
		}
	}
}

var (
	// "part1", "wolf-part-2", "panel_part3"
	partSuffixRe = regexp.MustCompile(`^(.*?)[-_ ]?part[-_ ]?\d+$`)
	// "panel-2", "layer_10" (delimiter required so "design1" stays intact)
	numberSuffixRe = regexp.MustCompile(`^(.*?)[-_ ]\d+$`)
	// "panel-a", "insert_b"
	letterSuffixRe = regexp.MustCompile(`^(.*?)[-_ ][a-z]$`)
)

// layerStem strips a part/layer suffix from a basename. The second return is
// false when the name carries no recognizable layer suffix.
func layerStem(base string) (string, bool) {
	lower := strings.ToLower(base)
	for _, re := range []*regexp.Regexp{partSuffixRe, numberSuffixRe, letterSuffixRe} {
		if m := re.FindStringSubmatch(lower); m != nil {
			return strings.Trim(m[1], "-_ "), true
		}
	}
	return "", false
}

// detectLayers claims same-folder files whose names differ only by a
// trailing part number, numeric index, or single letter suffix.
func (c *Clusterer) detectLayers(st *detectState) {
	for _, folder := range st.folders {
		files := st.remaining(folder)
		groups := make(map[string][]types.ScannedFile)
		var order []string
		for _, f := range files {
			stem, ok := layerStem(f.BaseName())
			if !ok {
				continue
			}
			if _, seen := groups[stem]; !seen {
				order = append(order, stem)
			}
			groups[stem] = append(groups[stem], f)
		}
		for _, stem := range order {
			group := groups[stem]
			if len(group) < 2 {
				continue
			}
			name := Humanize(stem)
			if len(stem) < 3 || stem == "part" {
				// "part1.svg" and friends name the project after the folder
				name = humanizeFolder(folder)
			}
			st.claim(name, group, types.ReasonLayer, confidenceLayer)
		}
	}
}

// detectPrefixes claims same-folder files sharing a non-trivial
// delimiter-separated filename prefix.
func (c *Clusterer) detectPrefixes(st *detectState) {
	for _, folder := range st.folders {
		files := st.remaining(folder)
		groups := make(map[string][]types.ScannedFile)
		var order []string
		for _, f := range files {
			tokens := splitTokens(strings.ToLower(f.BaseName()))
			if len(tokens) == 0 || len(tokens[0]) < 3 {
				continue
			}
			key := tokens[0]
			if _, seen := groups[key]; !seen {
				order = append(order, key)
			}
			groups[key] = append(groups[key], f)
		}
		for _, key := range order {
			group := groups[key]
			if len(group) < 2 {
				continue
			}
			// Extend to the longest token prefix the whole group shares.
			prefix := group[0].BaseName()
			for _, f := range group[1:] {
				prefix = commonTokenPrefix(prefix, f.BaseName())
			}
			if len(prefix) < 3 {
				continue
			}
			st.claim(Humanize(prefix), group, types.ReasonPrefix, confidencePrefix)
		}
	}
}

// detectCrossFolder claims files organized by type across sibling folders:
// each folder uniform in one extension, extensions disjoint, and basenames
// matching 1:1. Corresponding files group across the folder boundary.
func (c *Clusterer) detectCrossFolder(st *detectState) {
	type folderInfo struct {
		folder string
		ext    string
		byBase map[string]types.ScannedFile
		bases  []string // input order
	}

	// Collect folders that are uniform in a single extension.
	byParent := make(map[string][]*folderInfo)
	var parents []string
	for _, folder := range st.folders {
		files := st.remaining(folder)
		if len(files) == 0 {
			continue
		}
		info := &folderInfo{folder: folder, ext: files[0].Extension, byBase: make(map[string]types.ScannedFile)}
		uniform := true
		for _, f := range files {
			if f.Extension != info.ext || f.Extension == "" {
				uniform = false
				break
			}
			base := strings.ToLower(f.BaseName())
			if _, dup := info.byBase[base]; dup {
				uniform = false
				break
			}
			info.byBase[base] = f
			info.bases = append(info.bases, base)
		}
		if !uniform {
			continue
		}
		parent := path.Dir(folder)
		if _, seen := byParent[parent]; !seen {
			parents = append(parents, parent)
		}
		byParent[parent] = append(byParent[parent], info)
	}

	for _, parent := range parents {
		siblings := byParent[parent]
		if len(siblings) < 2 {
			continue
		}

		// Partition siblings by identical basename sets; a group must also
		// have pairwise distinct extensions.
		bySignature := make(map[string][]*folderInfo)
		var sigs []string
		for _, info := range siblings {
			sorted := append([]string(nil), info.bases...)
			sort.Strings(sorted)
			sig := strings.Join(sorted, "\x00")
			if _, seen := bySignature[sig]; !seen {
				sigs = append(sigs, sig)
			}
			bySignature[sig] = append(bySignature[sig], info)
		}

		for _, sig := range sigs {
			group := bySignature[sig]
			if len(group) < 2 {
				continue
			}
			exts := make(map[string]bool)
			distinct := true
			for _, info := range group {
				if exts[info.ext] {
					distinct = false
					break
				}
				exts[info.ext] = true
			}
			if !distinct {
				continue
			}
			for _, base := range group[0].bases {
				var members []types.ScannedFile
				for _, info := range group {
					members = append(members, info.byBase[base])
				}
				st.claim(Humanize(base), members, types.ReasonCrossFolder, confidenceCrossFolder)
			}
		}
	}
}

// detectFolders is the fallback: remaining files sharing a parent folder
// become one project named after the folder.
func (c *Clusterer) detectFolders(st *detectState) {
	for _, folder := range st.folders {
		files := st.remaining(folder)
		if len(files) < 2 {
			continue
		}
		st.claim(humanizeFolder(folder), files, types.ReasonFolder, confidenceFolder)
	}
}

// detectSingletons sweeps every file no rule matched into its own project.
func (c *Clusterer) detectSingletons(st *detectState) {
	for _, f := range st.files {
		if st.claimed[f.Path] {
			continue
		}
		st.claim(singletonName(f), []types.ScannedFile{f}, types.ReasonFolder, confidenceSingleton)
	}
}

// singletonName names a one-file project after its folder, falling back to
// the filename for files at the scan root.
func singletonName(f types.ScannedFile) string {
	if f.Folder != "" && f.Folder != "." && f.Folder != "/" {
		if name := humanizeFolder(f.Folder); name != "Untitled" {
			return name
		}
	}
	if name := Humanize(f.BaseName()); name != "" {
		return name
	}
	return "Untitled"
}

// applyConfidenceThreshold splits low-confidence multi-file groupings back
// into singletons instead of committing a doubtful cluster.
func (c *Clusterer) applyConfidenceThreshold(projects []types.DetectedProject) []types.DetectedProject {
	if c.cfg.ConfidenceThreshold <= 0 {
		return projects
	}
	var out []types.DetectedProject
	for _, p := range projects {
		if p.Confidence >= c.cfg.ConfidenceThreshold || len(p.Files) == 1 {
			out = append(out, p)
			continue
		}
		for _, f := range p.Files {
			out = append(out, types.DetectedProject{
				Name:       singletonName(f),
				Files:      []types.ScannedFile{f},
				Reason:     types.ReasonFolder,
				Confidence: confidenceSingleton,
			})
		}
	}
	return out
}

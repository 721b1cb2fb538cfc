package types

import (
	"fmt"
	"strings"
	"time"
)

// ScannedFile is one file discovered by the scanner. It is ephemeral:
// produced by a scan, consumed by clustering and job creation, never stored.
type ScannedFile struct {
	Path      string `json:"path"`      // path relative to the scan root
	Name      string `json:"name"`      // base filename including extension
	SizeBytes int64  `json:"size_bytes"`
	Extension string `json:"extension"` // lowercased, with leading dot (".svg")
	Folder    string `json:"folder"`    // parent folder path relative to the scan root ("" at root)
}

// BaseName returns the filename without its extension.
func (f ScannedFile) BaseName() string {
	return strings.TrimSuffix(f.Name, f.Extension)
}

// DetectionReason identifies which clustering rule grouped a project.
type DetectionReason string

const (
	ReasonFolder      DetectionReason = "folder"
	ReasonPrefix      DetectionReason = "prefix"
	ReasonVariant     DetectionReason = "variant"
	ReasonLayer       DetectionReason = "layer"
	ReasonManifest    DetectionReason = "manifest"
	ReasonCrossFolder DetectionReason = "cross-folder"
)

// IsValid checks if the detection reason is a known value
func (r DetectionReason) IsValid() bool {
	switch r {
	case ReasonFolder, ReasonPrefix, ReasonVariant, ReasonLayer, ReasonManifest, ReasonCrossFolder:
		return true
	}
	return false
}

// FileRole describes a file's role within a detected project.
type FileRole string

const (
	RolePrimary   FileRole = "primary"
	RoleVariant   FileRole = "variant"
	RoleComponent FileRole = "component"
)

// DetectedProject is a cluster of scanned files inferred to be one logical
// design. Created by the clusterer; a reviewer may rename or merge it before
// the job is committed.
type DetectedProject struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Files        []ScannedFile   `json:"files"`
	Reason       DetectionReason `json:"reason"`
	Confidence   float64         `json:"confidence"` // 0.0-1.0
	PrimaryFile  *ScannedFile    `json:"primary_file,omitempty"`
	Confirmed    bool            `json:"confirmed"`
	NameOverride string          `json:"name_override,omitempty"`
	Merged       bool            `json:"merged"`
}

// DisplayName returns the reviewer override when present, else the inferred name.
func (p *DetectedProject) DisplayName() string {
	if p.NameOverride != "" {
		return p.NameOverride
	}
	return p.Name
}

// Validate checks the project for internal consistency
func (p *DetectedProject) Validate() error {
	if p.Name == "" && p.NameOverride == "" {
		return fmt.Errorf("project name is required")
	}
	if len(p.Files) == 0 {
		return fmt.Errorf("project must contain at least one file")
	}
	if !p.Reason.IsValid() {
		return fmt.Errorf("invalid detection reason: %s", p.Reason)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence must be between 0.0 and 1.0 (got %g)", p.Confidence)
	}
	return nil
}

// SourceType identifies where an import job's files come from.
type SourceType string

const (
	SourceFolder  SourceType = "folder"
	SourceArchive SourceType = "archive"
	SourceUpload  SourceType = "upload"
)

// IsValid checks if the source type is a known value
func (s SourceType) IsValid() bool {
	switch s {
	case SourceFolder, SourceArchive, SourceUpload:
		return true
	}
	return false
}

// JobStatus represents the lifecycle state of an import job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobScanning   JobStatus = "scanning"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
	JobCancelled  JobStatus = "cancelled"
)

// IsValid checks if the status value is valid
func (s JobStatus) IsValid() bool {
	switch s {
	case JobPending, JobScanning, JobProcessing, JobPaused, JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the job state machine permits s -> next.
// The only backward edge is the processing <-> paused cycle.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	switch s {
	case JobPending:
		return next == JobScanning || next == JobProcessing || next == JobFailed || next == JobCancelled
	case JobScanning:
		return next == JobProcessing || next == JobFailed || next == JobCancelled
	case JobProcessing:
		return next == JobPaused || next == JobCompleted || next == JobFailed || next == JobCancelled
	case JobPaused:
		return next == JobProcessing || next == JobCancelled
	default:
		return false
	}
}

// ItemStatus represents one file's progress within a job
type ItemStatus string

const (
	ItemPending    ItemStatus = "pending"
	ItemProcessing ItemStatus = "processing"
	ItemCompleted  ItemStatus = "completed"
	ItemFailed     ItemStatus = "failed"
	ItemSkipped    ItemStatus = "skipped"
	ItemDuplicate  ItemStatus = "duplicate"
)

// IsValid checks if the status value is valid
func (s ItemStatus) IsValid() bool {
	switch s {
	case ItemPending, ItemProcessing, ItemCompleted, ItemFailed, ItemSkipped, ItemDuplicate:
		return true
	}
	return false
}

// IsTerminal reports whether the item has reached a final outcome.
func (s ItemStatus) IsTerminal() bool {
	switch s {
	case ItemCompleted, ItemFailed, ItemSkipped, ItemDuplicate:
		return true
	}
	return false
}

// CanTransitionTo reports whether the item state machine permits s -> next.
// processing -> pending is the crash-reclaim edge used on resume.
func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	switch s {
	case ItemPending:
		return next == ItemProcessing
	case ItemProcessing:
		return next.IsTerminal() || next == ItemPending
	default:
		return false
	}
}

// MaxScheduleDelay caps how far in the future a job may be scheduled.
const MaxScheduleDelay = 7 * 24 * time.Hour

// ImportJob is one unit of ingestion work, retained indefinitely for audit.
//
// Counter invariant: counters are monotonically non-decreasing while the job
// is processing, and at completion
// FilesProcessed == FilesSucceeded + FilesFailed + FilesSkipped.
// Duplicates are counted in the skipped bucket.
type ImportJob struct {
	ID             string            `json:"id"`
	SourceType     SourceType        `json:"source_type"`
	SourcePath     string            `json:"source_path"`
	TotalFiles     int               `json:"total_files"`
	Options        ProcessingOptions `json:"options"`
	Status         JobStatus         `json:"status"`
	FilesScanned   int               `json:"files_scanned"`
	FilesProcessed int               `json:"files_processed"`
	FilesSucceeded int               `json:"files_succeeded"`
	FilesFailed    int               `json:"files_failed"`
	FilesSkipped   int               `json:"files_skipped"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	ScheduledAt    *time.Time        `json:"scheduled_at,omitempty"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	EstimatedDone  *time.Time        `json:"estimated_completion,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Validate checks if the job has valid field values
func (j *ImportJob) Validate() error {
	if j.SourcePath == "" && j.SourceType != SourceUpload {
		return fmt.Errorf("source_path is required for %s jobs", j.SourceType)
	}
	if !j.SourceType.IsValid() {
		return fmt.Errorf("invalid source type: %s", j.SourceType)
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", j.Status)
	}
	if j.ScheduledAt != nil {
		if delay := time.Until(*j.ScheduledAt); delay > MaxScheduleDelay {
			return fmt.Errorf("scheduled start exceeds the %s maximum delay", MaxScheduleDelay)
		}
	}
	return j.Options.Validate()
}

// ReconcileCounters verifies the completion invariant
// processed == succeeded + failed + skipped.
func (j *ImportJob) ReconcileCounters() error {
	sum := j.FilesSucceeded + j.FilesFailed + j.FilesSkipped
	if j.FilesProcessed != sum {
		return fmt.Errorf("counter mismatch: processed=%d but succeeded+failed+skipped=%d", j.FilesProcessed, sum)
	}
	return nil
}

// ImportItem tracks one file's progress within a job.
type ImportItem struct {
	ID          string     `json:"id"`
	JobID       string     `json:"job_id"`
	SourcePath  string     `json:"source_path"`
	Filename    string     `json:"filename"`
	FileType    string     `json:"file_type"` // extension without dot ("svg")
	SizeBytes   int64      `json:"size_bytes"`
	ContentHash string     `json:"content_hash,omitempty"` // empty until computed
	Phash       string     `json:"phash,omitempty"`        // perceptual hash, best effort
	ProjectID   string     `json:"project_id,omitempty"`   // DetectedProject linkage
	Role        FileRole   `json:"role,omitempty"`
	Status      ItemStatus `json:"status"`

	// Set on success
	DesignID string `json:"design_id,omitempty"`
	FileID   string `json:"file_id,omitempty"`

	// Set on duplicate
	DuplicateOf string `json:"duplicate_of,omitempty"` // existing design file ID
	Similarity  int    `json:"similarity,omitempty"`   // 0-100

	// Set on failure
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// LogStatus is the terminal classification recorded in the audit log.
// It mirrors ItemStatus but names success explicitly.
type LogStatus string

const (
	LogPending    LogStatus = "pending"
	LogProcessing LogStatus = "processing"
	LogSucceeded  LogStatus = "succeeded"
	LogFailed     LogStatus = "failed"
	LogSkipped    LogStatus = "skipped"
	LogDuplicate  LogStatus = "duplicate"
)

// IsValid checks if the log status is a known value
func (s LogStatus) IsValid() bool {
	switch s {
	case LogPending, LogProcessing, LogSucceeded, LogFailed, LogSkipped, LogDuplicate:
		return true
	}
	return false
}

// IsFinal reports whether the log row may no longer be mutated.
func (s LogStatus) IsFinal() bool {
	switch s {
	case LogSucceeded, LogFailed, LogSkipped, LogDuplicate:
		return true
	}
	return false
}

// ImportLog is the append-only per-file audit record. One row is created in
// pending at scan commit, moved to processing when work starts, and finalized
// exactly once. Finalization is the only mutation after that transition.
type ImportLog struct {
	ID          string         `json:"id"`
	JobID       string         `json:"job_id"`
	ItemID      string         `json:"item_id"`
	Filename    string         `json:"filename"`
	SourcePath  string         `json:"source_path"`
	SizeBytes   int64          `json:"size_bytes"`
	Status      LogStatus      `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	Detail      map[string]any `json:"detail,omitempty"` // error codes, duplicate hash/similarity, step timings
	Steps       []string       `json:"steps,omitempty"`  // completed processing steps in order
	DesignID    string         `json:"design_id,omitempty"`
	FileID      string         `json:"file_id,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	DurationMS  int64          `json:"duration_ms,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// LogSummary is derived from audit rows. It is never stored; callers
// recompute it so it cannot drift from row-level truth.
type LogSummary struct {
	Total         int             `json:"total"`
	ByStatus      map[LogStatus]int `json:"by_status"`
	TotalBytes    int64           `json:"total_bytes"`
	AvgDurationMS int64           `json:"avg_duration_ms"`
}

// DesignMetadata is extracted from a design preview (AI vision) or derived
// from the filename when no generator is available.
type DesignMetadata struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	ProjectType  string   `json:"project_type,omitempty"` // coaster, sign, ornament, box, puzzle, jig, art, other
	Difficulty   string   `json:"difficulty,omitempty"`   // easy, medium, hard
	Materials    []string `json:"materials,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Style        string   `json:"style,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	ApproxDims   string   `json:"approx_dimensions,omitempty"`
	AIGenerated  bool     `json:"ai_generated"`
}

// Design is the user-facing artifact a successful item produces or updates.
type Design struct {
	ID               string         `json:"id"`
	Slug             string         `json:"slug"`
	Title            string         `json:"title"`
	Description      string         `json:"description"`
	PreviewPath      string         `json:"preview_path,omitempty"`
	Metadata         DesignMetadata `json:"metadata"`
	IsPublic         bool           `json:"is_public"`
	CurrentVersionID string         `json:"current_version_id,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// DesignFile is one stored version of a design. Its content hash feeds the
// exact-duplicate index; its preview phash feeds near-duplicate checks.
type DesignFile struct {
	ID            string    `json:"id"`
	DesignID      string    `json:"design_id"`
	StoragePath   string    `json:"storage_path"`
	FileType      string    `json:"file_type"`
	SizeBytes     int64     `json:"size_bytes"`
	ContentHash   string    `json:"content_hash"`
	PreviewPhash  string    `json:"preview_phash,omitempty"`
	SourcePath    string    `json:"source_path"`
	VersionNumber int       `json:"version_number"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

package types

import (
	"testing"
	"time"
)

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobPending, JobScanning, true},
		{JobPending, JobProcessing, true},
		{JobPending, JobCancelled, true},
		{JobPending, JobCompleted, false},
		{JobScanning, JobProcessing, true},
		{JobScanning, JobPaused, false},
		{JobProcessing, JobPaused, true},
		{JobProcessing, JobCompleted, true},
		{JobProcessing, JobFailed, true},
		{JobProcessing, JobCancelled, true},
		{JobPaused, JobProcessing, true},
		{JobPaused, JobCancelled, true},
		{JobPaused, JobCompleted, false},
		{JobCompleted, JobProcessing, false},
		{JobFailed, JobProcessing, false},
		{JobCancelled, JobProcessing, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	terminal := []JobStatus{JobCompleted, JobFailed, JobCancelled}
	active := []JobStatus{JobPending, JobScanning, JobProcessing, JobPaused}

	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range active {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestItemStatusTransitions(t *testing.T) {
	// pending can only start processing
	if ItemPending.CanTransitionTo(ItemCompleted) {
		t.Error("pending -> completed should not be allowed without processing")
	}
	if !ItemPending.CanTransitionTo(ItemProcessing) {
		t.Error("pending -> processing should be allowed")
	}

	// processing reaches any terminal state
	for _, terminal := range []ItemStatus{ItemCompleted, ItemFailed, ItemSkipped, ItemDuplicate} {
		if !ItemProcessing.CanTransitionTo(terminal) {
			t.Errorf("processing -> %s should be allowed", terminal)
		}
		// terminal states are final
		if terminal.CanTransitionTo(ItemProcessing) {
			t.Errorf("%s -> processing should not be allowed", terminal)
		}
	}

	// crash reclaim puts a stranded item back to pending
	if !ItemProcessing.CanTransitionTo(ItemPending) {
		t.Error("processing -> pending (crash reclaim) should be allowed")
	}
}

func TestJobValidate(t *testing.T) {
	job := &ImportJob{
		SourceType: SourceFolder,
		SourcePath: "/designs",
		Status:     JobPending,
		Options:    DefaultProcessingOptions(),
	}
	if err := job.Validate(); err != nil {
		t.Errorf("valid job failed validation: %v", err)
	}

	job.SourcePath = ""
	if err := job.Validate(); err == nil {
		t.Error("folder job without source_path should fail validation")
	}

	job.SourceType = SourceUpload
	if err := job.Validate(); err != nil {
		t.Errorf("upload job without source_path should validate: %v", err)
	}
}

func TestJobValidateScheduleCap(t *testing.T) {
	tooFar := time.Now().Add(MaxScheduleDelay + time.Hour)
	job := &ImportJob{
		SourceType:  SourceFolder,
		SourcePath:  "/designs",
		Status:      JobPending,
		Options:     DefaultProcessingOptions(),
		ScheduledAt: &tooFar,
	}
	if err := job.Validate(); err == nil {
		t.Error("schedule beyond 7 days should fail validation")
	}

	soon := time.Now().Add(time.Hour)
	job.ScheduledAt = &soon
	if err := job.Validate(); err != nil {
		t.Errorf("schedule within cap should validate: %v", err)
	}
}

func TestReconcileCounters(t *testing.T) {
	job := &ImportJob{
		FilesProcessed: 10,
		FilesSucceeded: 6,
		FilesFailed:    1,
		FilesSkipped:   3,
	}
	if err := job.ReconcileCounters(); err != nil {
		t.Errorf("reconciled counters reported mismatch: %v", err)
	}

	job.FilesSkipped = 2
	if err := job.ReconcileCounters(); err == nil {
		t.Error("expected counter mismatch error")
	}
}

func TestProcessingOptionsValidate(t *testing.T) {
	opts := ProcessingOptions{}
	if err := opts.Validate(); err != nil {
		t.Fatalf("zero options should validate with defaults: %v", err)
	}
	if opts.Concurrency != 5 {
		t.Errorf("zero concurrency should default to 5, got %d", opts.Concurrency)
	}
	if opts.CheckpointInterval != 10 {
		t.Errorf("zero checkpoint_interval should default to 10, got %d", opts.CheckpointInterval)
	}

	bad := ProcessingOptions{SimilarityThreshold: 101}
	if err := bad.Validate(); err == nil {
		t.Error("similarity_threshold over 100 should fail")
	}

	bad = ProcessingOptions{ConfidenceThreshold: 1.5}
	if err := bad.Validate(); err == nil {
		t.Error("confidence_threshold over 1.0 should fail")
	}
}

func TestScannedFileBaseName(t *testing.T) {
	f := ScannedFile{Name: "solar-panel-mount.svg", Extension: ".svg"}
	if got := f.BaseName(); got != "solar-panel-mount" {
		t.Errorf("BaseName() = %q, want %q", got, "solar-panel-mount")
	}
}

func TestDetectedProjectValidate(t *testing.T) {
	p := &DetectedProject{
		Name:       "Solar Panel Mount",
		Files:      []ScannedFile{{Name: "mount.svg"}},
		Reason:     ReasonFolder,
		Confidence: 0.9,
	}
	if err := p.Validate(); err != nil {
		t.Errorf("valid project failed validation: %v", err)
	}

	p.Confidence = 1.5
	if err := p.Validate(); err == nil {
		t.Error("confidence over 1.0 should fail validation")
	}

	p.Confidence = 0.9
	p.Files = nil
	if err := p.Validate(); err == nil {
		t.Error("empty file list should fail validation")
	}
}

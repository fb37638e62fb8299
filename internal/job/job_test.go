package job

import (
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	job := New()

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestJob_Transitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		{"QUEUED to RUNNING", StatusQueued, StatusRunning, false},
		{"QUEUED to CANCELLED", StatusQueued, StatusCancelled, false},
		{"QUEUED to FAILED", StatusQueued, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, false},
		{"QUEUED to COMPLETED", StatusQueued, StatusCompleted, true},
		{"RUNNING to QUEUED", StatusRunning, StatusQueued, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err != ErrInvalidTransition {
				t.Errorf("expected ErrInvalidTransition for %s -> %s, got %v", tt.from, tt.to, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Lifecycle(t *testing.T) {
	tests := []struct {
		name         string
		steps        func(j *Job) error
		wantStatus   Status
		wantProgress int
		wantError    string
		started      bool
		finished     bool
	}{
		{
			name:       "start",
			steps:      func(j *Job) error { return j.Start() },
			wantStatus: StatusRunning,
			started:    true,
		},
		{
			name: "complete forces progress to 100",
			steps: func(j *Job) error {
				_ = j.Start()
				j.UpdateProgress(40)
				return j.Complete()
			},
			wantStatus:   StatusCompleted,
			wantProgress: 100,
			started:      true,
			finished:     true,
		},
		{
			name: "fail keeps progress and records the message",
			steps: func(j *Job) error {
				_ = j.Start()
				j.UpdateProgress(40)
				return j.Fail("Export failed")
			},
			wantStatus:   StatusFailed,
			wantProgress: 40,
			wantError:    "Export failed",
			started:      true,
			finished:     true,
		},
		{
			name:       "fail before start",
			steps:      func(j *Job) error { return j.Fail("No video track found in the input file") },
			wantStatus: StatusFailed,
			wantError:  "No video track found in the input file",
			finished:   true,
		},
		{
			name:       "cancel while queued",
			steps:      func(j *Job) error { return j.Cancel() },
			wantStatus: StatusCancelled,
			finished:   true,
		},
		{
			name: "cancel while running",
			steps: func(j *Job) error {
				_ = j.Start()
				return j.Cancel()
			},
			wantStatus: StatusCancelled,
			started:    true,
			finished:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := New()
			before := time.Now()

			if err := tt.steps(job); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if job.Status != tt.wantStatus {
				t.Errorf("expected status %s, got %s", tt.wantStatus, job.Status)
			}
			if job.Progress != tt.wantProgress {
				t.Errorf("expected progress %d, got %d", tt.wantProgress, job.Progress)
			}
			if job.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, job.Error)
			}
			if tt.started == job.StartedAt.IsZero() {
				t.Errorf("StartedAt = %v, started %v", job.StartedAt, tt.started)
			}
			if tt.started && job.StartedAt.Before(before) {
				t.Error("StartedAt predates the transition")
			}
			if tt.finished == job.CompletedAt.IsZero() {
				t.Errorf("CompletedAt = %v, finished %v", job.CompletedAt, tt.finished)
			}
		})
	}
}

func TestJob_TerminalStatesAreFinal(t *testing.T) {
	job := New()
	_ = job.Start()
	_ = job.Complete()

	for name, step := range map[string]func() error{
		"start":    job.Start,
		"complete": job.Complete,
		"cancel":   job.Cancel,
		"fail":     func() error { return job.Fail("late") },
	} {
		if err := step(); err != ErrInvalidTransition {
			t.Errorf("%s after completion: expected ErrInvalidTransition, got %v", name, err)
		}
	}
	if job.Status != StatusCompleted || job.Error != "" {
		t.Errorf("terminal job changed: %s %q", job.Status, job.Error)
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := New()

	tests := []struct {
		input    int
		expected int
	}{
		{-10, 0},
		{20, 20},
		{50, 50},
		{30, 50}, // never moves backwards
		{150, 100},
	}

	for _, tt := range tests {
		job.UpdateProgress(tt.input)
		if job.Progress != tt.expected {
			t.Errorf("UpdateProgress(%d): expected %d, got %d", tt.input, tt.expected, job.Progress)
		}
	}
}

func TestJob_SetPlan(t *testing.T) {
	job := New()

	job.SetPlan(406, 720, 30)

	if job.RenderWidth != 406 || job.RenderHeight != 720 {
		t.Errorf("expected render size 406x720, got %dx%d", job.RenderWidth, job.RenderHeight)
	}
	if job.OutputDuration != 30 {
		t.Errorf("expected output duration 30, got %v", job.OutputDuration)
	}
}

func TestJob_ClearOutput(t *testing.T) {
	job := New()
	job.OutputPath = "/tmp/out.mp4"
	job.SetVideoURL("https://bucket.s3.amazonaws.com/exports/out.mp4")

	job.ClearOutput()

	if job.OutputPath != "" || job.VideoURL != "" {
		t.Errorf("expected output cleared, got %q and %q", job.OutputPath, job.VideoURL)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Status = StatusRunning
	job.Progress = 50
	job.InputPath = "/videos/clip.mov"
	job.TempInput = true
	job.Speed = 2
	job.Resolution = "720p"
	job.SetPlan(406, 720, 30)

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Progress != job.Progress {
		t.Errorf("expected Progress %d, got %d", job.Progress, clone.Progress)
	}
	if clone.InputPath != job.InputPath || !clone.TempInput {
		t.Errorf("expected input %s to be cloned", job.InputPath)
	}
	if clone.Speed != 2 || clone.Resolution != "720p" {
		t.Errorf("expected speed 2 and 720p, got %v and %s", clone.Speed, clone.Resolution)
	}
	if clone.RenderWidth != 406 || clone.RenderHeight != 720 || clone.OutputDuration != 30 {
		t.Error("expected plan to be cloned")
	}

	clone.Status = StatusCompleted
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
		}
		done <- true
	}()

	<-done
	<-done
}

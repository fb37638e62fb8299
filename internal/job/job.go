// Package job provides the Job aggregate for export requests made through
// the HTTP API, its repository, and the ExportService that runs them.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/tempo/internal/job/id"
)

// Status is the lifecycle state of an export job as reported by the API.
type Status string

const (
	// StatusQueued indicates the job is waiting for an export slot.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the job is being inspected, planned or exported.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the output file was written.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job stopped with an error.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was cancelled.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition reports a status change the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid state transition")

// Terminal reports whether no further transitions leave s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// allows reports whether a job in status s may move to next. Queued jobs may
// fail before they start, e.g. when the service shuts down.
func (s Status) allows(next Status) bool {
	switch s {
	case StatusQueued:
		return next == StatusRunning || next == StatusFailed || next == StatusCancelled
	case StatusRunning:
		return next.Terminal()
	}
	return false
}

// Job represents one export request.
type Job struct {
	mu sync.RWMutex

	ID       string
	Status   Status
	Progress int // 0-100, never decreases
	// Error is the user-facing failure message.
	Error string

	InputPath string
	// TempInput marks InputPath as an upload owned by the job.
	TempInput  bool
	OutputPath string
	Speed      float64
	Resolution string // "original", "480p", "720p" or "1080p"

	// PushToS3 requests an upload once the export completes; VideoURL holds
	// the object URL afterwards.
	PushToS3 bool
	VideoURL string

	// Planned output, filled in once the source is inspected.
	RenderWidth    int
	RenderHeight   int
	OutputDuration float64

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New returns a queued job with a freshly generated ID.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID returns a queued job carrying jobID.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo moves the job to status and stamps the matching timestamps.
// It fails with ErrInvalidTransition when the lifecycle forbids the move.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.Status.allows(status) {
		return ErrInvalidTransition
	}

	now := time.Now()
	j.Status = status
	j.UpdatedAt = now
	if status == StatusRunning {
		j.StartedAt = now
	} else if status.Terminal() {
		j.CompletedAt = now
	}
	return nil
}

// Start transitions the job from QUEUED to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED and sets progress to 100.
func (j *Job) Complete() error {
	if err := j.TransitionTo(StatusCompleted); err != nil {
		return err
	}
	j.UpdateProgress(100)
	return nil
}

// Fail marks the job FAILED and records msg for the client.
func (j *Job) Fail(msg string) error {
	if err := j.TransitionTo(StatusFailed); err != nil {
		return err
	}
	j.mu.Lock()
	j.Error = msg
	j.mu.Unlock()
	return nil
}

// Cancel marks the job CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus reads Status under the job lock.
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// UpdateProgress clamps percent to 0-100 and ignores values below the
// current progress.
func (j *Job) UpdateProgress(percent int) {
	percent = min(max(percent, 0), 100)
	j.mu.Lock()
	defer j.mu.Unlock()
	if percent < j.Progress {
		return
	}
	j.Progress = percent
	j.UpdatedAt = time.Now()
}

// SetPlan records the planned output geometry and duration.
func (j *Job) SetPlan(width, height int, duration float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.RenderWidth = width
	j.RenderHeight = height
	j.OutputDuration = duration
	j.UpdatedAt = time.Now()
}

// SetVideoURL sets the S3 URL of the uploaded export.
func (j *Job) SetVideoURL(url string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.VideoURL = url
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the exported file once it has been removed.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputPath = ""
	j.VideoURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal reports whether the job has finished one way or another.
func (j *Job) IsTerminal() bool {
	return j.GetStatus().Terminal()
}

// Clone returns an unshared copy of the job.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return &Job{
		ID:             j.ID,
		Status:         j.Status,
		Progress:       j.Progress,
		Error:          j.Error,
		InputPath:      j.InputPath,
		TempInput:      j.TempInput,
		OutputPath:     j.OutputPath,
		Speed:          j.Speed,
		Resolution:     j.Resolution,
		PushToS3:       j.PushToS3,
		VideoURL:       j.VideoURL,
		RenderWidth:    j.RenderWidth,
		RenderHeight:   j.RenderHeight,
		OutputDuration: j.OutputDuration,
		CreatedAt:      j.CreatedAt,
		UpdatedAt:      j.UpdatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}

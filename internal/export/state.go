package export

import (
	"errors"
	"fmt"

	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

// Static errors reported through a job's Result.
var (
	// ErrNoVideoTrack is returned when the source has no video track. No
	// composition is built and the engine is not invoked.
	ErrNoVideoTrack = media.ErrNoVideoTrack
	// ErrCompositionFailed is returned when the time-remapped composition
	// cannot be assembled.
	ErrCompositionFailed = errors.New("failed to create video composition")
	// ErrExportFailed is returned when the engine fails or ends in a status
	// the controller does not recognise. The engine's own error, if any, is
	// wrapped alongside it.
	ErrExportFailed = errors.New("export failed")
	// ErrCancelled is returned when the job was cancelled.
	ErrCancelled = errors.New("export cancelled")
	// ErrExportInProgress is returned by Start while another job is running.
	ErrExportInProgress = errors.New("an export is already running")
)

// State is the lifecycle state of a Job.
type State int

const (
	// StateIdle means the job has not started.
	StateIdle State = iota
	// StateRunning means the job is assembling or exporting.
	StateRunning
	// StateCompleted means the output file was written.
	StateCompleted
	// StateFailed means the job stopped with an error.
	StateFailed
	// StateCancelled means the job was cancelled.
	StateCancelled
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateIdle:      {StateRunning, StateCancelled},
	StateRunning:   {StateCompleted, StateFailed, StateCancelled},
	StateCompleted: {},
	StateFailed:    {},
	StateCancelled: {},
}

// canTransition checks if a transition from one state to another is valid.
func canTransition(from, to State) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Result is the terminal outcome of a job.
type Result struct {
	// State is StateCompleted, StateFailed or StateCancelled.
	State State
	// OutputPath is the written file when State is StateCompleted.
	OutputPath string
	// Err is the reason for StateFailed and StateCancelled.
	Err error
}

func completed(path string) Result {
	return Result{State: StateCompleted, OutputPath: path}
}

func failed(err error) Result {
	return Result{State: StateFailed, Err: err}
}

func cancelled() Result {
	return Result{State: StateCancelled, Err: ErrCancelled}
}

// Message returns the user-facing sentence for an error from inspection,
// planning or export.
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return "Export cancelled"
	case errors.Is(err, ErrNoVideoTrack):
		return "No video track found in the input file"
	case errors.Is(err, source.ErrUnreadableMetadata):
		return "Failed to load video"
	case errors.Is(err, planner.ErrInvalidSpeedFactor):
		return "Speed must be a positive number"
	case errors.Is(err, planner.ErrInvalidGeometry):
		return "The video has an invalid frame size"
	case errors.Is(err, planner.ErrInvalidDuration):
		return "The video has an invalid duration"
	case errors.Is(err, planner.ErrInvalidResolution):
		return "Unsupported output resolution"
	case errors.Is(err, ErrCompositionFailed):
		return "Failed to create video composition"
	case errors.Is(err, ErrExportInProgress):
		return "An export is already running"
	case errors.Is(err, ErrExportFailed):
		return "Export failed"
	default:
		return err.Error()
	}
}

package export

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

// Job is one export attempt. It is not restartable.
//
// The cancellation flag is the only state written from outside the job's
// goroutine. It is checked before the time remap, before the engine takes
// over, and on every poll, and Cancel also forwards it to the engine session.
type Job struct {
	asset        *source.MediaAsset
	plan         planner.RenderPlan
	outputPath   string
	engine       Engine
	pollInterval time.Duration
	frameRate    int
	logger       *slog.Logger

	cancelled atomic.Bool

	mu      sync.Mutex
	state   State
	result  Result
	session media.ExportSession

	// progress is only written by the job goroutine.
	progress chan float64
	last     float64
	done     chan struct{}
}

// Progress returns the progress stream: non-decreasing fractions in [0, 1],
// closed when the job ends. Values the reader misses are replaced by newer
// ones. After a successful export the last value is exactly 1.
func (j *Job) Progress() <-chan float64 {
	return j.progress
}

// Done is closed once the job has a Result.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Result returns the terminal outcome. It is only meaningful after Done is
// closed.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// Wait blocks until the job ends or ctx is done.
func (j *Job) Wait(ctx context.Context) (Result, error) {
	select {
	case <-j.done:
		return j.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// OutputPath returns the destination file.
func (j *Job) OutputPath() string {
	return j.outputPath
}

// Plan returns the render plan the job was started with.
func (j *Job) Plan() planner.RenderPlan {
	return j.plan
}

// Cancel requests cancellation. Only the first call has an effect. A job
// that has not reached a terminal state will end Cancelled.
func (j *Job) Cancel() {
	if !j.cancelled.CompareAndSwap(false, true) {
		return
	}
	j.mu.Lock()
	s := j.session
	j.mu.Unlock()
	if s != nil {
		s.Cancel()
	}
}

// Cancelled reports whether cancellation was requested.
func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if !canTransition(j.state, to) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, j.state, to)
	}
	j.state = to
	return nil
}

// publish sends v to the progress stream if it moves forward, replacing an
// unread older value. NaN samples are dropped and the rest clamped to [0, 1].
func (j *Job) publish(v float64) {
	if math.IsNaN(v) {
		return
	}
	v = min(max(v, 0), 1)
	if v <= j.last {
		return
	}
	j.last = v
	select {
	case j.progress <- v:
	default:
		select {
		case <-j.progress:
		default:
		}
		j.progress <- v
	}
}

func (j *Job) finish(r Result) {
	j.mu.Lock()
	j.result = r
	j.mu.Unlock()

	if err := j.transition(r.State); err != nil {
		j.logger.Error("invalid job transition", slog.String("error", err.Error()))
	}

	switch r.State {
	case StateCompleted:
		j.logger.Info("export completed")
	case StateCancelled:
		j.logger.Info("export cancelled")
	default:
		j.logger.Error("export failed", slog.String("error", r.Err.Error()))
	}

	close(j.progress)
	close(j.done)
}

func (j *Job) run(ctx context.Context) Result {
	if j.cancelled.Load() {
		return cancelled()
	}

	video := j.asset.Video
	if video.Kind != media.KindVideo {
		return failed(fmt.Errorf("%w: %s", ErrNoVideoTrack, j.asset.Path))
	}

	j.logger.Info("export started",
		slog.Float64("speed", float64(j.plan.Speed)),
		slog.Int("render_width", j.plan.RenderSize.Width),
		slog.Int("render_height", j.plan.RenderSize.Height),
		slog.Float64("output_duration", j.plan.OutputDuration),
		slog.String("orientation", j.plan.Orientation.String()),
	)

	comp := media.NewComposition()
	full := media.TimeRange{Duration: j.asset.Duration}

	vt := comp.AddTrack(media.KindVideo)
	if err := vt.InsertTimeRange(full, video, 0); err != nil {
		return failed(fmt.Errorf("%w: %w", ErrCompositionFailed, err))
	}
	tracks := []*media.CompositionTrack{vt}
	if j.asset.Audio != nil {
		at := comp.AddTrack(media.KindAudio)
		if err := at.InsertTimeRange(full, *j.asset.Audio, 0); err != nil {
			return failed(fmt.Errorf("%w: %w", ErrCompositionFailed, err))
		}
		tracks = append(tracks, at)
	}

	if j.cancelled.Load() {
		return cancelled()
	}

	for _, t := range tracks {
		if err := t.ScaleTimeRange(full, j.plan.OutputDuration); err != nil {
			return failed(fmt.Errorf("%w: %w", ErrCompositionFailed, err))
		}
	}

	vc := media.NewVideoComposition(j.plan.RenderSize, j.frameRate)
	vc.MaxBitRate = j.plan.MaxBitRate
	vc.SetLayerTransform(vt.ID, j.plan.Transform, 0)

	if j.cancelled.Load() {
		return cancelled()
	}

	if err := os.Remove(j.outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		j.logger.Warn("failed to remove existing output", slog.String("error", err.Error()))
	}

	session, err := j.engine.NewExportSession(comp, vc, j.outputPath)
	if err != nil {
		return failed(fmt.Errorf("%w: %w", ErrExportFailed, err))
	}
	j.mu.Lock()
	j.session = session
	j.mu.Unlock()
	if j.cancelled.Load() {
		session.Cancel()
	}

	r := j.await(ctx, session)
	if r.State != StateCompleted {
		j.removePartial()
	}
	return r
}

// await runs the session and relays its progress until it reaches a
// terminal status.
func (j *Job) await(ctx context.Context, session media.ExportSession) Result {
	exported := make(chan struct{})
	go func() {
		defer close(exported)
		session.Export(ctx)
	}()

	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

poll:
	for {
		select {
		case <-exported:
			break poll
		case <-ticker.C:
			if j.cancelled.Load() {
				session.Cancel()
			}
			if session.Status().Terminal() {
				break poll
			}
			j.publish(session.Progress())
		}
	}

	if j.cancelled.Load() {
		return cancelled()
	}

	switch status := session.Status(); status {
	case media.ExportCompleted:
		j.publish(1)
		return completed(j.outputPath)
	case media.ExportFailed:
		if err := session.Err(); err != nil {
			return failed(fmt.Errorf("%w: %w", ErrExportFailed, err))
		}
		return failed(ErrExportFailed)
	case media.ExportCancelled:
		return cancelled()
	default:
		return failed(fmt.Errorf("%w: engine stopped in status %s", ErrExportFailed, status))
	}
}

func (j *Job) removePartial() {
	if err := os.Remove(j.outputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		j.logger.Warn("failed to remove partial output", slog.String("error", err.Error()))
	}
}

package export

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/tempo/internal/geometry"
	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
)

const testTimeout = 5 * time.Second

func newTestController(engine Engine) *Controller {
	return NewController(engine, nil, WithPollInterval(time.Millisecond))
}

// collect drains the progress stream and returns the job result.
func collect(t *testing.T, job *Job) ([]float64, Result) {
	t.Helper()
	var values []float64
	timeout := time.After(testTimeout)
	for {
		select {
		case v, ok := <-job.Progress():
			if !ok {
				ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
				defer cancel()
				r, err := job.Wait(ctx)
				require.NoError(t, err)
				return values, r
			}
			values = append(values, v)
		case <-timeout:
			t.Fatal("job did not finish")
		}
	}
}

func TestController_Completed(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	session := newFakeSession(media.ExportCompleted, 0.1, 0.3, 0.3, 0.6, 0.9)
	engine := &fakeEngine{session: session}
	asset := testAsset(true)
	plan := testPlan(asset)

	job, err := newTestController(engine).Start(context.Background(), asset, plan, out)
	require.NoError(t, err)

	values, result := collect(t, job)

	assert.Equal(t, StateCompleted, result.State)
	assert.Equal(t, out, result.OutputPath)
	assert.NoError(t, result.Err)
	assert.Equal(t, StateCompleted, job.State())

	require.NotEmpty(t, values)
	assert.Equal(t, 1.0, values[len(values)-1])
	for i := 1; i < len(values); i++ {
		assert.GreaterOrEqual(t, values[i], values[i-1])
	}
	for _, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestController_ProgressIgnoresBadSamples(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	session := newFakeSession(media.ExportCompleted, 0.6, math.NaN(), 0.2, -0.5, 0.8, 3)
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), out)
	require.NoError(t, err)

	values, result := collect(t, job)

	assert.Equal(t, StateCompleted, result.State)
	require.NotEmpty(t, values)
	assert.Equal(t, 1.0, values[len(values)-1])
	for i, v := range values {
		assert.False(t, math.IsNaN(v), "value %d is NaN", i)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
		if i > 0 {
			assert.GreaterOrEqual(t, v, values[i-1])
		}
	}
}

func TestController_CompositionHandedToEngine(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	engine := &fakeEngine{session: newFakeSession(media.ExportCompleted)}
	asset := testAsset(true)
	plan := testPlan(asset)

	job, err := NewController(engine, nil, WithPollInterval(time.Millisecond), WithFrameRate(25)).
		Start(context.Background(), asset, plan, out)
	require.NoError(t, err)
	_, result := collect(t, job)
	require.Equal(t, StateCompleted, result.State)

	assert.Equal(t, out, engine.lastPath)
	assert.InDelta(t, 30.0, engine.comp.Duration(), 1e-9)

	videos := engine.comp.TracksOf(media.KindVideo)
	require.Len(t, videos, 1)
	require.Len(t, videos[0].Segments, 1)
	assert.Equal(t, media.TimeRange{Duration: 60}, videos[0].Segments[0].Source)
	assert.Equal(t, 2.0, videos[0].Segments[0].Rate())

	audio := engine.comp.TracksOf(media.KindAudio)
	require.Len(t, audio, 1)
	assert.InDelta(t, 30.0, audio[0].Duration(), 1e-9)

	assert.Equal(t, geometry.Dimensions{Width: 406, Height: 720}, engine.video.RenderSize)
	assert.Equal(t, 25, engine.video.FrameRate)
	assert.Equal(t, 2_500_000, engine.video.MaxBitRate)
	require.Len(t, engine.video.Layers, 1)
	assert.Equal(t, videos[0].ID, engine.video.Layers[0].TrackID)
	assert.Equal(t, plan.Transform, engine.video.Layers[0].Transform)
}

func TestController_AudioIsOptional(t *testing.T) {
	engine := &fakeEngine{session: newFakeSession(media.ExportCompleted)}
	asset := testAsset(false)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	_, result := collect(t, job)

	assert.Equal(t, StateCompleted, result.State)
	assert.Empty(t, engine.comp.TracksOf(media.KindAudio))
}

func TestController_NoVideoTrack(t *testing.T) {
	engine := &fakeEngine{session: newFakeSession(media.ExportCompleted)}
	asset := testAsset(true)
	plan := testPlan(asset)
	asset.Video = media.Track{}

	job, err := newTestController(engine).Start(context.Background(), asset, plan, filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	values, result := collect(t, job)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrNoVideoTrack)
	assert.Empty(t, values)
	assert.Equal(t, 0, engine.Calls(), "engine must not be invoked")
}

func TestController_EngineFailure(t *testing.T) {
	engineErr := &media.FFmpegError{Args: []string{"-i", "x"}, Stderr: "Invalid data", Err: errors.New("exit status 1")}

	tests := []struct {
		name      string
		final     media.ExportStatus
		finalErr  error
		wantState State
		wantIs    []error
	}{
		{"failed with reason", media.ExportFailed, engineErr, StateFailed, []error{ErrExportFailed, engineErr}},
		{"failed without reason", media.ExportFailed, nil, StateFailed, []error{ErrExportFailed}},
		{"unknown status", media.ExportUnknown, nil, StateFailed, []error{ErrExportFailed}},
		{"engine cancelled", media.ExportCancelled, nil, StateCancelled, []error{ErrCancelled}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(t.TempDir(), "out.mp4")
			session := newFakeSession(tt.final, 0.2)
			session.finalErr = tt.finalErr
			engine := &fakeEngine{session: session}
			asset := testAsset(true)

			job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), out)
			require.NoError(t, err)
			values, result := collect(t, job)

			assert.Equal(t, tt.wantState, result.State)
			for _, want := range tt.wantIs {
				assert.ErrorIs(t, result.Err, want)
			}
			for _, v := range values {
				assert.Less(t, v, 1.0)
			}
		})
	}
}

func TestController_NewSessionError(t *testing.T) {
	engine := &fakeEngine{err: media.ErrInvalidRenderSize}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	_, result := collect(t, job)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrExportFailed)
	assert.ErrorIs(t, result.Err, media.ErrInvalidRenderSize)
}

func TestController_CompositionFailed(t *testing.T) {
	engine := &fakeEngine{session: newFakeSession(media.ExportCompleted)}
	asset := testAsset(true)
	plan := testPlan(asset)
	plan.OutputDuration = 0

	job, err := newTestController(engine).Start(context.Background(), asset, plan, filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	_, result := collect(t, job)

	assert.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, ErrCompositionFailed)
	assert.Equal(t, 0, engine.Calls())
}

func TestController_CancelTakesPrecedence(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	session := newFakeSession(media.ExportCompleted, 0.5)
	session.hold = true
	session.ignoreCancel = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), out)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return session.Status() == media.ExportExporting }, testTimeout, time.Millisecond)
	job.Cancel()
	job.Cancel()
	close(session.release)

	values, result := collect(t, job)
	assert.Equal(t, StateCancelled, result.State)
	assert.ErrorIs(t, result.Err, ErrCancelled)
	assert.Equal(t, media.ExportCompleted, session.Status(), "engine finished first")
	assert.GreaterOrEqual(t, session.cancelCalls.Load(), int32(1))
	for _, v := range values {
		assert.Less(t, v, 1.0)
	}
}

func TestController_CancelStopsEngine(t *testing.T) {
	session := newFakeSession(media.ExportCompleted, 0.1)
	session.hold = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)
	ctrl := newTestController(engine)

	job, err := ctrl.Start(context.Background(), asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return session.Status() == media.ExportExporting }, testTimeout, time.Millisecond)

	ctrl.Cancel()

	_, result := collect(t, job)
	assert.Equal(t, StateCancelled, result.State)
	assert.Equal(t, media.ExportCancelled, session.Status())
	assert.True(t, job.Cancelled())
}

func TestController_CancelBeforeHandoff(t *testing.T) {
	session := newFakeSession(media.ExportCompleted)
	session.hold = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	job.Cancel()

	_, result := collect(t, job)
	assert.Equal(t, StateCancelled, result.State)
	if engine.Calls() > 0 {
		assert.GreaterOrEqual(t, session.cancelCalls.Load(), int32(1))
	}
}

func TestController_ContextCancel(t *testing.T) {
	session := newFakeSession(media.ExportCompleted)
	session.hold = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job, err := newTestController(engine).Start(ctx, asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return session.Status() == media.ExportExporting }, testTimeout, time.Millisecond)

	cancel()

	_, result := collect(t, job)
	assert.Equal(t, StateCancelled, result.State)
}

func TestController_ExportInProgress(t *testing.T) {
	session := newFakeSession(media.ExportCompleted)
	session.hold = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)
	plan := testPlan(asset)
	ctrl := newTestController(engine)
	dir := t.TempDir()

	assert.Equal(t, StateIdle, ctrl.State())

	first, err := ctrl.Start(context.Background(), asset, plan, filepath.Join(dir, "a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, StateRunning, ctrl.State())

	_, err = ctrl.Start(context.Background(), asset, plan, filepath.Join(dir, "b.mp4"))
	assert.ErrorIs(t, err, ErrExportInProgress)

	first.Cancel()
	_, result := collect(t, first)
	require.Equal(t, StateCancelled, result.State)

	engine.session = newFakeSession(media.ExportCompleted)
	second, err := ctrl.Start(context.Background(), asset, plan, filepath.Join(dir, "b.mp4"))
	require.NoError(t, err)
	assert.Same(t, second, ctrl.Current())
	_, result = collect(t, second)
	assert.Equal(t, StateCompleted, result.State)
}

func TestController_RemovesExistingOutput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o600))

	session := newFakeSession(media.ExportCompleted)
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), out)
	require.NoError(t, err)
	_, result := collect(t, job)

	assert.Equal(t, StateCompleted, result.State)
	assert.False(t, session.outputExisted.Load(), "stale output must be removed before export")
}

func TestController_RemovesPartialOutputOnFailure(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.mp4")
	session := newFakeSession(media.ExportFailed)
	session.hold = true
	engine := &fakeEngine{session: session}
	asset := testAsset(true)

	job, err := newTestController(engine).Start(context.Background(), asset, testPlan(asset), out)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return session.Status() == media.ExportExporting }, testTimeout, time.Millisecond)

	require.NoError(t, os.WriteFile(out, []byte("partial"), 0o600))
	close(session.release)

	_, result := collect(t, job)
	assert.Equal(t, StateFailed, result.State)
	assert.NoFileExists(t, out)
}

func TestController_StartValidation(t *testing.T) {
	ctrl := newTestController(&fakeEngine{})

	_, err := ctrl.Start(context.Background(), nil, planner.RenderPlan{}, "out.mp4")
	assert.ErrorIs(t, err, ErrNoVideoTrack)

	_, err = ctrl.Start(context.Background(), testAsset(false), planner.RenderPlan{}, "")
	assert.ErrorIs(t, err, media.ErrOutputPathRequired)

	assert.Nil(t, ctrl.Current())
}

func TestJob_WaitRespectsContext(t *testing.T) {
	session := newFakeSession(media.ExportCompleted)
	session.hold = true
	asset := testAsset(true)

	job, err := newTestController(&fakeEngine{session: session}).Start(context.Background(), asset, testPlan(asset), filepath.Join(t.TempDir(), "o.mp4"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = job.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	job.Cancel()
	_, result := collect(t, job)
	assert.Equal(t, StateCancelled, result.State)
}

package export

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/tempo/internal/geometry"
	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

// fakeSession plays a scripted export. When hold is set, Export blocks after
// the scripted steps until release is closed or the session is cancelled.
type fakeSession struct {
	steps        []float64
	stepDelay    time.Duration
	final        media.ExportStatus
	finalErr     error
	hold         bool
	ignoreCancel bool
	release      chan struct{}

	outputPath     string
	outputExisted  atomic.Bool
	cancelCalls    atomic.Int32
	cancelRequests chan struct{}
	cancelOnce     sync.Once

	mu       sync.Mutex
	status   media.ExportStatus
	progress float64
	err      error
}

func newFakeSession(final media.ExportStatus, steps ...float64) *fakeSession {
	return &fakeSession{
		steps:          steps,
		stepDelay:      2 * time.Millisecond,
		final:          final,
		release:        make(chan struct{}),
		cancelRequests: make(chan struct{}),
	}
}

func (s *fakeSession) Export(ctx context.Context) {
	if _, err := os.Stat(s.outputPath); err == nil {
		s.outputExisted.Store(true)
	}

	s.mu.Lock()
	if s.status == media.ExportCancelled {
		s.mu.Unlock()
		return
	}
	s.status = media.ExportExporting
	s.mu.Unlock()

	for _, p := range s.steps {
		s.mu.Lock()
		s.progress = p
		s.mu.Unlock()
		time.Sleep(s.stepDelay)
	}

	if s.hold {
		select {
		case <-s.release:
		case <-s.cancelRequests:
			if !s.ignoreCancel {
				s.setFinal(media.ExportCancelled, nil)
				return
			}
			<-s.release
		case <-ctx.Done():
			if !s.ignoreCancel {
				s.setFinal(media.ExportCancelled, nil)
				return
			}
			<-s.release
		}
	}

	s.setFinal(s.final, s.finalErr)
}

func (s *fakeSession) setFinal(status media.ExportStatus, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.err = err
}

func (s *fakeSession) Status() media.ExportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *fakeSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *fakeSession) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeSession) Cancel() {
	s.cancelCalls.Add(1)
	s.cancelOnce.Do(func() { close(s.cancelRequests) })
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == media.ExportWaiting {
		s.status = media.ExportCancelled
	}
}

// fakeEngine records what the controller hands to the engine.
type fakeEngine struct {
	mu       sync.Mutex
	session  *fakeSession
	err      error
	calls    int
	comp     *media.Composition
	video    *media.VideoComposition
	lastPath string
}

func (e *fakeEngine) NewExportSession(comp *media.Composition, video *media.VideoComposition, outputPath string) (media.ExportSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.comp = comp
	e.video = video
	e.lastPath = outputPath
	if e.err != nil {
		return nil, e.err
	}
	e.session.outputPath = outputPath
	return e.session, nil
}

func (e *fakeEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// testAsset returns a 60 second portrait phone clip with audio.
func testAsset(withAudio bool) *source.MediaAsset {
	stored := geometry.Size{Width: 1920, Height: 1080}
	preferred := geometry.DisplayTransform(stored, 90)
	video := media.Track{
		AssetPath:          "/in/clip.mov",
		Index:              0,
		Kind:               media.KindVideo,
		NaturalSize:        stored,
		PreferredTransform: preferred,
		Rotation:           90,
	}
	asset := &source.MediaAsset{
		Path:               "/in/clip.mov",
		Duration:           60,
		Video:              video,
		VideoTrackCount:    1,
		NaturalSize:        stored,
		DisplaySize:        geometry.Size{Width: 1080, Height: 1920},
		PreferredTransform: preferred,
		Rotation:           90,
	}
	if withAudio {
		asset.Audio = &media.Track{AssetPath: "/in/clip.mov", Index: 1, Kind: media.KindAudio}
		asset.AudioTrackCount = 1
	}
	return asset
}

func testPlan(asset *source.MediaAsset) planner.RenderPlan {
	plan, err := planner.ForAsset(asset, planner.P720, 2)
	if err != nil {
		panic(err)
	}
	return plan
}

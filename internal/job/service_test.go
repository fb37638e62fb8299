package job

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/maauso/tempo/internal/geometry"
	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
	"github.com/maauso/tempo/internal/storage"
)

// stubLoader returns a fixed asset for every path.
type stubLoader struct {
	asset *media.Asset
	err   error
}

func (l *stubLoader) LoadAsset(_ context.Context, path string) (*media.Asset, error) {
	if l.err != nil {
		return nil, l.err
	}
	a := *l.asset
	a.Path = path
	return &a, nil
}

func portraitAsset() *media.Asset {
	stored := geometry.Size{Width: 1920, Height: 1080}
	return &media.Asset{
		Duration: 60,
		Tracks: []media.Track{
			{
				Index:              0,
				Kind:               media.KindVideo,
				NaturalSize:        stored,
				PreferredTransform: geometry.DisplayTransform(stored, 90),
				Rotation:           90,
			},
			{Index: 1, Kind: media.KindAudio, PreferredTransform: geometry.Identity()},
		},
	}
}

func audioOnlyAsset() *media.Asset {
	return &media.Asset{
		Duration: 60,
		Tracks:   []media.Track{{Index: 0, Kind: media.KindAudio, PreferredTransform: geometry.Identity()}},
	}
}

// stubSession completes, fails or blocks until cancelled.
type stubSession struct {
	outputPath string
	fail       bool
	block      bool
	started    chan struct{}
	cancelled  chan struct{}
	once       sync.Once

	mu       sync.Mutex
	status   media.ExportStatus
	progress float64
}

func (s *stubSession) Export(ctx context.Context) {
	close(s.started)
	s.set(media.ExportExporting, 0.5)

	if s.block {
		select {
		case <-s.cancelled:
		case <-ctx.Done():
		}
		s.set(media.ExportCancelled, 0.5)
		return
	}
	if s.fail {
		s.set(media.ExportFailed, 0.5)
		return
	}
	_ = os.WriteFile(s.outputPath, []byte("video"), 0600)
	s.set(media.ExportCompleted, 1)
}

func (s *stubSession) set(status media.ExportStatus, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
	s.progress = progress
}

func (s *stubSession) Status() media.ExportStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubSession) Progress() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

func (s *stubSession) Err() error {
	if s.Status() == media.ExportFailed {
		return errors.New("exit status 1")
	}
	return nil
}

func (s *stubSession) Cancel() {
	s.once.Do(func() { close(s.cancelled) })
}

// stubEngine hands out one stubSession per export.
type stubEngine struct {
	fail    bool
	block   bool
	started chan struct{}

	mu    sync.Mutex
	calls int
	last  *stubSession
}

func newStubEngine() *stubEngine {
	return &stubEngine{started: make(chan struct{})}
}

func (e *stubEngine) NewExportSession(_ *media.Composition, _ *media.VideoComposition, outputPath string) (media.ExportSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.last = &stubSession{
		outputPath: outputPath,
		fail:       e.fail,
		block:      e.block,
		started:    e.started,
		cancelled:  make(chan struct{}),
	}
	return e.last, nil
}

func (e *stubEngine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// uploadingStorage is local storage that accepts uploads.
type uploadingStorage struct {
	*storage.LocalStorage

	mu   sync.Mutex
	keys []string
	data []string
}

func (s *uploadingStorage) Upload(_ context.Context, key string, r io.Reader) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	s.data = append(s.data, string(b))
	return "https://test-bucket.s3.us-east-1.amazonaws.com/" + key, nil
}

func newTestService(t *testing.T, loader media.AssetLoader, engine *stubEngine) (*ExportService, *uploadingStorage) {
	t.Helper()
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	store := &uploadingStorage{LocalStorage: local}
	svc := NewExportService(
		NewMemoryRepository(),
		source.NewInspector(loader, nil),
		engine,
		store,
		nil,
		WithPollInterval(time.Millisecond),
		WithInputDirs(testInputDirs...),
	)
	return svc, store
}

// testInputDirs are the source roots the fixtures read from. The stub loader
// never touches the filesystem, so they need not exist.
var testInputDirs = []string{"/videos", "/audio"}

func TestExportService_CreateJob(t *testing.T) {
	svc, store := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, CreateExportInput{
		InputPath:  "/videos/clip.mov",
		Speed:      2,
		Resolution: "720p",
		PushToS3:   true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusQueued {
		t.Errorf("expected status %s, got %s", StatusQueued, job.Status)
	}
	if job.Resolution != "720p" {
		t.Errorf("expected resolution 720p, got %s", job.Resolution)
	}
	if want := store.OutputPath(job.ID); job.OutputPath != want {
		t.Errorf("expected output path %s, got %s", want, job.OutputPath)
	}

	saved, err := svc.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("job should be saved in repository: %v", err)
	}
	if !saved.PushToS3 {
		t.Error("expected PushToS3 to be true")
	}
}

func TestExportService_CreateJob_Invalid(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())

	tests := []struct {
		name  string
		input CreateExportInput
		want  error
	}{
		{"missing input", CreateExportInput{Speed: 1}, source.ErrUnreadableMetadata},
		{"zero speed", CreateExportInput{InputPath: "a.mov"}, planner.ErrInvalidSpeedFactor},
		{"negative speed", CreateExportInput{InputPath: "a.mov", Speed: -2}, planner.ErrInvalidSpeedFactor},
		{"unknown resolution", CreateExportInput{InputPath: "a.mov", Speed: 1, Resolution: "4k"}, planner.ErrInvalidResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateJob(context.Background(), tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestExportService_CreateJob_InputDirs(t *testing.T) {
	svc, store := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	rejected := []string{
		"/etc/passwd",
		"/videos/../etc/passwd",
		"/videos-archive/clip.mov",
		"/videos",
		"clip.mov",
	}
	for _, path := range rejected {
		if _, err := svc.CreateJob(ctx, CreateExportInput{InputPath: path, Speed: 1}); !errors.Is(err, ErrInputNotAllowed) {
			t.Errorf("%s: expected ErrInputNotAllowed, got %v", path, err)
		}
	}

	upload := filepath.Join(store.UploadDir(), "upload.mov")
	job, err := svc.CreateJob(ctx, CreateExportInput{InputPath: upload, TempInput: true, Speed: 1})
	if err != nil {
		t.Fatalf("uploads bypass the input directories: %v", err)
	}
	if want := store.OutputPath(job.ID); job.OutputPath != want {
		t.Errorf("expected output path %s, got %s", want, job.OutputPath)
	}

	jobs, err := svc.ListJobs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("rejected requests must not be saved, got %d jobs", len(jobs))
	}
}

func TestExportService_CreateJob_NoInputDirs(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	svc := NewExportService(NewMemoryRepository(), source.NewInspector(&stubLoader{asset: portraitAsset()}, nil), newStubEngine(), local, nil)

	_, err = svc.CreateJob(context.Background(), CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})
	if !errors.Is(err, ErrInputNotAllowed) {
		t.Errorf("expected ErrInputNotAllowed, got %v", err)
	}
}

func TestExportService_ProcessJob_Completed(t *testing.T) {
	engine := newStubEngine()
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, engine)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 2, Resolution: "720p"})

	job, err := svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Fatalf("expected status %s, got %s (%s)", StatusCompleted, job.Status, job.Error)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.RenderWidth != 406 || job.RenderHeight != 720 {
		t.Errorf("expected render size 406x720, got %dx%d", job.RenderWidth, job.RenderHeight)
	}
	if job.OutputDuration != 30 {
		t.Errorf("expected output duration 30, got %v", job.OutputDuration)
	}
	if _, err := os.Stat(job.OutputPath); err != nil {
		t.Errorf("expected output file: %v", err)
	}
	if job.VideoURL != "" {
		t.Errorf("expected no video URL, got %s", job.VideoURL)
	}

	saved, _ := svc.GetJob(ctx, created.ID)
	if saved.Status != StatusCompleted {
		t.Errorf("expected saved status %s, got %s", StatusCompleted, saved.Status)
	}
}

func TestExportService_ProcessJob_PushToS3(t *testing.T) {
	svc, store := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1, PushToS3: true})

	job, err := svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Fatalf("expected status %s, got %s (%s)", StatusCompleted, job.Status, job.Error)
	}
	wantKey := "exports/" + created.ID + ".mp4"
	if len(store.keys) != 1 || store.keys[0] != wantKey {
		t.Fatalf("expected upload of %s, got %v", wantKey, store.keys)
	}
	if store.data[0] != "video" {
		t.Errorf("expected uploaded content %q, got %q", "video", store.data[0])
	}
	if job.VideoURL != "https://test-bucket.s3.us-east-1.amazonaws.com/"+wantKey {
		t.Errorf("unexpected video URL %s", job.VideoURL)
	}
}

func TestExportService_ProcessJob_UploadNotConfigured(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	svc := NewExportService(
		NewMemoryRepository(),
		source.NewInspector(&stubLoader{asset: portraitAsset()}, nil),
		newStubEngine(),
		local,
		nil,
		WithPollInterval(time.Millisecond),
		WithInputDirs(testInputDirs...),
	)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1, PushToS3: true})
	job, err := svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
}

func TestExportService_ProcessJob_NoVideoTrack(t *testing.T) {
	engine := newStubEngine()
	svc, _ := newTestService(t, &stubLoader{asset: audioOnlyAsset()}, engine)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/audio/voice.m4a", Speed: 1})

	job, err := svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != "No video track found in the input file" {
		t.Errorf("unexpected error message %q", job.Error)
	}
	if engine.Calls() != 0 {
		t.Errorf("expected engine not to be called, got %d calls", engine.Calls())
	}
}

func TestExportService_ProcessJob_EngineFailure(t *testing.T) {
	engine := newStubEngine()
	engine.fail = true
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, engine)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})

	job, err := svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != "Export failed" {
		t.Errorf("expected error %q, got %q", "Export failed", job.Error)
	}
	if _, err := os.Stat(job.OutputPath); !os.IsNotExist(err) {
		t.Errorf("expected no output file after failure, got %v", err)
	}
}

func TestExportService_ProcessJob_RemovesUploadedInput(t *testing.T) {
	svc, store := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	input := filepath.Join(store.UploadDir(), "upload.mov")
	if err := os.WriteFile(input, []byte("source"), 0600); err != nil {
		t.Fatalf("failed to write input: %v", err)
	}
	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: input, TempInput: true, Speed: 1})

	if _, err := svc.ProcessJob(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(input); !os.IsNotExist(err) {
		t.Errorf("expected uploaded input to be removed, got %v", err)
	}
}

func TestExportService_CancelJob_Queued(t *testing.T) {
	engine := newStubEngine()
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, engine)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})

	job, err := svc.CancelJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Errorf("expected status %s, got %s", StatusCancelled, job.Status)
	}

	job, err = svc.ProcessJob(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusCancelled {
		t.Errorf("expected status %s after processing, got %s", StatusCancelled, job.Status)
	}
	if engine.Calls() != 0 {
		t.Errorf("expected engine not to be called, got %d calls", engine.Calls())
	}
}

func TestExportService_CancelJob_Running(t *testing.T) {
	engine := newStubEngine()
	engine.block = true
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, engine)
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})

	type result struct {
		job *Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		j, err := svc.ProcessJob(ctx, created.ID)
		done <- result{j, err}
	}()

	select {
	case <-engine.started:
	case <-time.After(5 * time.Second):
		t.Fatal("export did not start")
	}

	if _, err := svc.CancelJob(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case r := <-done:
		if r.err != nil {
			t.Fatalf("unexpected error: %v", r.err)
		}
		if r.job.Status != StatusCancelled {
			t.Errorf("expected status %s, got %s", StatusCancelled, r.job.Status)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("job did not stop after cancel")
	}

	saved, _ := svc.GetJob(ctx, created.ID)
	if saved.Status != StatusCancelled {
		t.Errorf("expected saved status %s, got %s", StatusCancelled, saved.Status)
	}
}

func TestExportService_CancelJob_Terminal(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})
	_, _ = svc.ProcessJob(ctx, created.ID)

	if _, err := svc.CancelJob(ctx, created.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.CancelJob(ctx, "nonexistent"); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestExportService_DeleteJob(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})

	if err := svc.DeleteJob(ctx, created.ID); !errors.Is(err, ErrJobActive) {
		t.Errorf("expected ErrJobActive for queued job, got %v", err)
	}

	job, _ := svc.ProcessJob(ctx, created.ID)
	if err := svc.DeleteJob(ctx, created.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := os.Stat(job.OutputPath); !os.IsNotExist(err) {
		t.Errorf("expected output to be removed, got %v", err)
	}
	if _, err := svc.GetJob(ctx, created.ID); err != ErrJobNotFound {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestExportService_ListJobs(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	first, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/a.mov", Speed: 1})
	second, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/b.mov", Speed: 2})

	jobs, err := svc.ListJobs(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Errorf("expected newest first, got [%s %s]", jobs[0].ID, jobs[1].ID)
	}
}

func TestExportService_OpenOutput(t *testing.T) {
	svc, _ := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	created, _ := svc.CreateJob(ctx, CreateExportInput{InputPath: "/videos/clip.mov", Speed: 1})

	if _, _, err := svc.OpenOutput(ctx, created.ID); !errors.Is(err, ErrOutputUnavailable) {
		t.Errorf("expected ErrOutputUnavailable before completion, got %v", err)
	}

	_, _ = svc.ProcessJob(ctx, created.ID)

	rc, job, err := svc.OpenOutput(ctx, created.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "video" {
		t.Errorf("expected output content %q, got %q", "video", data)
	}
	if job.ID != created.ID {
		t.Errorf("expected job %s, got %s", created.ID, job.ID)
	}
}

func TestExportService_SaveUpload(t *testing.T) {
	svc, store := newTestService(t, &stubLoader{asset: portraitAsset()}, newStubEngine())
	ctx := context.Background()

	path, err := svc.SaveUpload(ctx, "../holiday.mov", strings.NewReader("source"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(path) != store.UploadDir() || filepath.Ext(path) != ".mov" {
		t.Errorf("unexpected upload path %s", path)
	}

	if err := svc.RemoveUpload(ctx, path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected upload to be removed, got %v", err)
	}
}

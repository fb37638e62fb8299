package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/tempo/internal/export"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
	"github.com/maauso/tempo/internal/storage"
)

// Static errors for service operations.
var (
	// ErrJobActive is returned when an operation needs a finished job.
	ErrJobActive = errors.New("job is still active")
	// ErrOutputUnavailable is returned when a job has no readable output.
	ErrOutputUnavailable = errors.New("export output is not available")
	// ErrInputNotAllowed is returned for a source path outside the
	// configured input directories.
	ErrInputNotAllowed = errors.New("input path is outside the allowed directories")
)

// CreateExportInput contains the parameters of an export request.
type CreateExportInput struct {
	// InputPath is the source video. Unless TempInput is set it must lie
	// under one of the service's input directories.
	InputPath string
	// TempInput marks InputPath as an upload to be removed once the job ends.
	TempInput bool
	// Speed is the playback rate multiplier.
	Speed float64
	// Resolution is "original", "480p", "720p" or "1080p". Empty means original.
	Resolution string
	// PushToS3 indicates whether to upload the result to S3.
	PushToS3 bool
}

// ExportService runs export jobs: it inspects the source, plans the render,
// drives an export.Controller per job and optionally uploads the result.
type ExportService struct {
	repo      Repository
	inspector *source.Inspector
	engine    export.Engine
	storage   storage.Storage
	logger    *slog.Logger

	maxConcurrentExports int
	pollInterval         time.Duration
	frameRate            int
	inputDirs            []string
	sem                  chan struct{}

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// ServiceOption configures an ExportService.
type ServiceOption func(*ExportService)

// WithMaxConcurrentExports sets how many exports run at once.
func WithMaxConcurrentExports(n int) ServiceOption {
	return func(s *ExportService) {
		if n > 0 {
			s.maxConcurrentExports = n
		}
	}
}

// WithPollInterval sets how often engine progress is sampled.
func WithPollInterval(d time.Duration) ServiceOption {
	return func(s *ExportService) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithFrameRate sets the output frame rate.
func WithFrameRate(fps int) ServiceOption {
	return func(s *ExportService) {
		if fps > 0 {
			s.frameRate = fps
		}
	}
}

// WithInputDirs sets the directories CreateJob accepts server-side source
// paths from. Without any, only uploads can be exported.
func WithInputDirs(dirs ...string) ServiceOption {
	return func(s *ExportService) {
		s.inputDirs = append(s.inputDirs, dirs...)
	}
}

// NewExportService creates a new ExportService.
func NewExportService(
	repo Repository,
	inspector *source.Inspector,
	engine export.Engine,
	store storage.Storage,
	logger *slog.Logger,
	opts ...ServiceOption,
) *ExportService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ExportService{
		repo:                 repo,
		inspector:            inspector,
		engine:               engine,
		storage:              store,
		logger:               logger,
		maxConcurrentExports: 2,
		pollInterval:         export.DefaultPollInterval,
		frameRate:            export.DefaultFrameRate,
		active:               make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = make(chan struct{}, s.maxConcurrentExports)
	return s
}

// CreateJob validates the request and persists a QUEUED job.
func (s *ExportService) CreateJob(ctx context.Context, input CreateExportInput) (*Job, error) {
	if input.InputPath == "" {
		return nil, fmt.Errorf("%w: input path is required", source.ErrUnreadableMetadata)
	}
	if err := planner.SpeedFactor(input.Speed).Validate(); err != nil {
		return nil, err
	}
	policy, err := planner.ParseResolution(input.Resolution)
	if err != nil {
		return nil, err
	}
	if !input.TempInput && !storage.Within(input.InputPath, s.inputDirs...) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotAllowed, input.InputPath)
	}

	job := New()
	job.InputPath = input.InputPath
	job.TempInput = input.TempInput
	job.Speed = input.Speed
	job.Resolution = policy.String()
	job.PushToS3 = input.PushToS3
	job.OutputPath = s.storage.OutputPath(job.ID)

	s.logger.Info("creating new job",
		slog.String("job_id", job.ID),
		slog.String("input", job.InputPath),
		slog.Float64("speed", job.Speed),
		slog.String("resolution", job.Resolution),
		slog.Bool("push_to_s3", job.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return job, nil
}

// SaveUpload stores an uploaded source and returns its path, to be passed
// to CreateJob with TempInput set.
func (s *ExportService) SaveUpload(ctx context.Context, name string, data io.Reader) (string, error) {
	return s.storage.SaveTemp(ctx, name, data)
}

// RemoveUpload deletes an upload that never became a job.
func (s *ExportService) RemoveUpload(ctx context.Context, path string) error {
	return s.storage.CleanupTemp(ctx, []string{path})
}

// OpenOutput opens the exported file of a completed job.
// The caller is responsible for closing the returned ReadCloser.
func (s *ExportService) OpenOutput(ctx context.Context, id string) (io.ReadCloser, *Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.GetStatus() != StatusCompleted || job.OutputPath == "" {
		return nil, job, ErrOutputUnavailable
	}
	f, err := s.storage.Open(ctx, job.OutputPath)
	if err != nil {
		return nil, job, fmt.Errorf("%w: %w", ErrOutputUnavailable, err)
	}
	return f, job, nil
}

// GetJob retrieves a job by ID.
func (s *ExportService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *ExportService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// ProcessJob runs a QUEUED job to a terminal state and returns it. The
// returned error is only for failures outside the job itself, such as a
// repository error; export failures are recorded on the job.
func (s *ExportService) ProcessJob(ctx context.Context, id string) (*Job, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.register(id, cancel) {
		return nil, fmt.Errorf("%w: %s is already processing", ErrJobActive, id)
	}
	defer s.unregister(id)

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	logger := s.logger.With(slog.String("job_id", id))

	if job.TempInput {
		defer func() {
			if err := s.storage.CleanupTemp(context.WithoutCancel(ctx), []string{job.InputPath}); err != nil {
				logger.Warn("failed to clean up input", slog.String("error", err.Error()))
			}
		}()
	}

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		return s.cancelled(ctx, job, logger)
	}

	if err := job.Start(); err != nil {
		return nil, err
	}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	logger.Info("job started")

	asset, err := s.inspector.Inspect(ctx, job.InputPath)
	if err != nil {
		if ctx.Err() != nil {
			return s.cancelled(ctx, job, logger)
		}
		return s.fail(ctx, job, logger, err)
	}

	policy, err := planner.ParseResolution(job.Resolution)
	if err != nil {
		return s.fail(ctx, job, logger, err)
	}
	plan, err := planner.ForAsset(asset, policy, planner.SpeedFactor(job.Speed))
	if err != nil {
		return s.fail(ctx, job, logger, err)
	}
	job.SetPlan(plan.RenderSize.Width, plan.RenderSize.Height, plan.OutputDuration)
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}

	ctrl := export.NewController(s.engine, logger,
		export.WithPollInterval(s.pollInterval),
		export.WithFrameRate(s.frameRate),
	)
	ej, err := ctrl.Start(ctx, asset, plan, job.OutputPath)
	if err != nil {
		return s.fail(ctx, job, logger, err)
	}

	for p := range ej.Progress() {
		pct := int(p * 100)
		if pct <= job.Progress {
			continue
		}
		job.UpdateProgress(pct)
		if err := s.save(ctx, job); err != nil {
			logger.Warn("failed to save progress", slog.String("error", err.Error()))
		}
	}

	res, err := ej.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return nil, err
	}

	switch res.State {
	case export.StateCompleted:
		if job.PushToS3 {
			url, err := s.upload(ctx, job)
			if err != nil {
				if ctx.Err() != nil {
					return s.cancelled(ctx, job, logger)
				}
				return s.fail(ctx, job, logger, err)
			}
			job.SetVideoURL(url)
		}
		if err := job.Complete(); err != nil {
			return nil, err
		}
		logger.Info("job completed", slog.String("output_path", job.OutputPath))
		return job, s.save(ctx, job)
	case export.StateCancelled:
		return s.cancelled(ctx, job, logger)
	default:
		return s.fail(ctx, job, logger, res.Err)
	}
}

// CancelJob requests cancellation. A job that is processing ends
// CANCELLED once the engine stops; a job nobody is processing is cancelled
// immediately.
func (s *ExportService) CancelJob(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, job.GetStatus(), StatusCancelled)
	}

	if cancel, processing := s.active[id]; processing {
		s.logger.Info("cancelling job", slog.String("job_id", id))
		cancel()
		return job, nil
	}

	if err := job.Cancel(); err != nil {
		return nil, err
	}
	s.logger.Info("job cancelled", slog.String("job_id", id))
	return job, s.repo.Save(ctx, job)
}

// DeleteJob removes a finished job and its output file.
func (s *ExportService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !job.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrJobActive, id)
	}
	if job.OutputPath != "" {
		if err := s.storage.CleanupTemp(ctx, []string{job.OutputPath}); err != nil {
			s.logger.Warn("failed to remove output",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	s.logger.Info("job deleted", slog.String("job_id", id))
	return s.repo.Delete(ctx, id)
}

func (s *ExportService) register(id string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[id]; ok {
		return false
	}
	s.active[id] = cancel
	return true
}

func (s *ExportService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, id)
}

// save persists job even after ctx was cancelled.
func (s *ExportService) save(ctx context.Context, job *Job) error {
	return s.repo.Save(context.WithoutCancel(ctx), job)
}

func (s *ExportService) upload(ctx context.Context, job *Job) (string, error) {
	f, err := s.storage.Open(ctx, job.OutputPath)
	if err != nil {
		return "", fmt.Errorf("open output: %w", err)
	}
	defer f.Close()

	url, err := s.storage.Upload(ctx, storage.ExportKey(job.ID), f)
	if err != nil {
		return "", fmt.Errorf("upload output: %w", err)
	}
	return url, nil
}

func (s *ExportService) fail(ctx context.Context, job *Job, logger *slog.Logger, cause error) (*Job, error) {
	logger.Error("job failed", slog.String("error", cause.Error()))
	if err := job.Fail(export.Message(cause)); err != nil {
		return nil, err
	}
	return job, s.save(ctx, job)
}

func (s *ExportService) cancelled(ctx context.Context, job *Job, logger *slog.Logger) (*Job, error) {
	logger.Info("job cancelled")
	if err := job.Cancel(); err != nil {
		return nil, err
	}
	return job, s.save(ctx, job)
}

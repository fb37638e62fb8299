// Package bootstrap wires the tempo services from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/tempo/internal/config"
	"github.com/maauso/tempo/internal/job"
	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/source"
	"github.com/maauso/tempo/internal/storage"
)

// interruptedMessage is recorded on jobs a previous process left unfinished.
const interruptedMessage = "Export interrupted by a server restart"

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	ExportService *job.ExportService
	Storage       storage.Storage
	Repository    job.Repository

	closers []func() error
}

// Close releases resources held by the dependencies.
func (d *Dependencies) Close() error {
	var firstErr error
	for _, c := range d.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	deps := &Dependencies{Storage: store}
	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}
	deps.Repository = repo

	engine := NewEngine(cfg)

	deps.ExportService = job.NewExportService(
		repo,
		source.NewInspector(engine, logger),
		engine,
		store,
		logger,
		job.WithMaxConcurrentExports(cfg.MaxConcurrentExports),
		job.WithPollInterval(cfg.ProgressInterval),
		job.WithFrameRate(cfg.FrameRate),
		job.WithInputDirs(cfg.InputDirs...),
	)

	return deps, nil
}

// NewEngine creates the ffmpeg-backed media engine.
func NewEngine(cfg *config.Config) *media.FFmpegEngine {
	return media.NewFFmpegEngine(cfg.FFmpegPath, cfg.FFprobePath)
}

// initRepository opens the SQLite job store when JobStorePath is set and
// falls back to memory otherwise.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if cfg.JobStorePath == "" {
		logger.Info("in-memory job store configured")
		return job.NewMemoryRepository(), nil
	}

	repo, err := job.OpenSQLiteRepository(ctx, cfg.JobStorePath)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	deps.closers = append(deps.closers, repo.Close)

	n, err := repo.FailInterrupted(ctx, interruptedMessage)
	if err != nil {
		_ = repo.Close()
		return nil, fmt.Errorf("recover job store: %w", err)
	}
	logger.Info("sqlite job store configured",
		slog.String("path", repo.Path()),
		slog.Int64("interrupted_jobs", n),
	)
	return repo, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(ctx, cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

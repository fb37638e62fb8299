// Package config reads the tempo server settings from the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Validation errors returned by Load.
var (
	// ErrInvalidConcurrency is returned when MAX_CONCURRENT_EXPORTS is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_EXPORTS must be positive")
	// ErrInvalidProgressInterval is returned when PROGRESS_INTERVAL is not positive.
	ErrInvalidProgressInterval = errors.New("config: PROGRESS_INTERVAL must be positive")
	// ErrInvalidFrameRate is returned when FRAME_RATE is not positive.
	ErrInvalidFrameRate = errors.New("config: FRAME_RATE must be positive")
)

// Config is the server configuration. Zero-value S3 settings disable uploads.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Media engine settings
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/tempo" json:"temp_dir"`

	// Directories JSON requests may name sources in; empty allows uploads only
	InputDirs []string `env:"INPUT_DIRS" json:"input_dirs,omitempty"`

	// Job history; empty keeps jobs in memory
	JobStorePath string `env:"JOB_STORE_PATH" json:"job_store_path,omitempty"`

	// Processing settings
	MaxConcurrentExports int           `env:"MAX_CONCURRENT_EXPORTS, default=2" json:"max_concurrent_exports"`
	ProgressInterval     time.Duration `env:"PROGRESS_INTERVAL, default=100ms" json:"progress_interval"`
	FrameRate            int           `env:"FRAME_RATE, default=30" json:"frame_rate"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // never serialised
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // never serialised

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"`
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"` // "debug", "info", "warn", "error"
}

// S3Enabled reports whether both bucket and region are set.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that numeric settings are usable.
func (c *Config) Validate() error {
	if c.MaxConcurrentExports <= 0 {
		return ErrInvalidConcurrency
	}
	if c.ProgressInterval <= 0 {
		return ErrInvalidProgressInterval
	}
	if c.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	return nil
}

// NewLogger returns a logger on stdout using LogFormat and LogLevel.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination. Any format other
// than "json" selects the text handler.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	if strings.EqualFold(c.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// String renders the config for startup logs. Credentials are masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, FFmpegPath: %s, FFprobePath: %s, TempDir: %s, InputDirs: %v, JobStorePath: %s, MaxConcurrentExports: %d, ProgressInterval: %s, FrameRate: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, AWSAccessKeyID: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegPath,
		c.FFprobePath,
		c.TempDir,
		c.InputDirs,
		c.JobStorePath,
		c.MaxConcurrentExports,
		c.ProgressInterval,
		c.FrameRate,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		mask(c.AWSAccessKeyID),
		c.LogFormat,
		c.LogLevel,
	)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "****"
}

// parseLogLevel maps LOG_LEVEL onto slog, falling back to info.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

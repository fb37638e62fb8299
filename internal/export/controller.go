// Package export drives one export job at a time: it assembles the
// time-remapped composition for a planned source, hands it to the media
// engine, relays progress, and resolves to Completed, Failed or Cancelled.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/tempo/internal/media"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

const (
	// DefaultPollInterval is how often engine progress is sampled.
	DefaultPollInterval = 100 * time.Millisecond
	// DefaultFrameRate is the output frame rate.
	DefaultFrameRate = 30
)

// Engine creates export sessions. media.FFmpegEngine implements it.
type Engine interface {
	NewExportSession(comp *media.Composition, video *media.VideoComposition, outputPath string) (media.ExportSession, error)
}

// Controller starts export jobs. Only one job runs at a time; starting
// another while one is running fails with ErrExportInProgress.
type Controller struct {
	engine       Engine
	logger       *slog.Logger
	pollInterval time.Duration
	frameRate    int

	mu      sync.Mutex
	current *Job
}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets how often engine progress is sampled.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithFrameRate sets the output frame rate.
func WithFrameRate(fps int) Option {
	return func(c *Controller) {
		if fps > 0 {
			c.frameRate = fps
		}
	}
}

// NewController creates a Controller. A nil logger uses slog.Default().
func NewController(engine Engine, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		engine:       engine,
		logger:       logger,
		pollInterval: DefaultPollInterval,
		frameRate:    DefaultFrameRate,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins exporting asset according to plan into outputPath and
// returns immediately. Cancelling ctx cancels the job.
func (c *Controller) Start(ctx context.Context, asset *source.MediaAsset, plan planner.RenderPlan, outputPath string) (*Job, error) {
	if asset == nil {
		return nil, fmt.Errorf("%w: no source", ErrNoVideoTrack)
	}
	if outputPath == "" {
		return nil, media.ErrOutputPathRequired
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil && !c.current.State().Terminal() {
		return nil, ErrExportInProgress
	}

	j := &Job{
		asset:        asset,
		plan:         plan,
		outputPath:   outputPath,
		engine:       c.engine,
		pollInterval: c.pollInterval,
		frameRate:    c.frameRate,
		logger: c.logger.With(
			slog.String("input", asset.Path),
			slog.String("output_path", outputPath),
		),
		state:    StateIdle,
		progress: make(chan float64, 1),
		done:     make(chan struct{}),
	}
	if err := j.transition(StateRunning); err != nil {
		return nil, err
	}
	c.current = j

	stop := context.AfterFunc(ctx, j.Cancel)
	go func() {
		defer stop()
		j.finish(j.run(ctx))
	}()

	return j, nil
}

// Cancel cancels the current job, if any.
func (c *Controller) Cancel() {
	if j := c.Current(); j != nil {
		j.Cancel()
	}
}

// Current returns the most recently started job, or nil.
func (c *Controller) Current() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// State returns the state of the current job, or StateIdle.
func (c *Controller) State() State {
	if j := c.Current(); j != nil {
		return j.State()
	}
	return StateIdle
}

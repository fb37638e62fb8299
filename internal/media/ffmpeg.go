package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Static errors for media operations.
var (
	// ErrFFprobeExecution is returned when the ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
	// ErrOutputPathRequired is returned when an export has no destination.
	ErrOutputPathRequired = errors.New("output path is required")
)

// stderrLimit bounds the ffmpeg stderr kept for error reports.
const stderrLimit = 8 * 1024

// Compile-time check that FFmpegEngine implements Engine.
var _ Engine = (*FFmpegEngine)(nil)

// FFmpegEngine implements Engine using the ffmpeg and ffprobe CLIs.
type FFmpegEngine struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	profile     Profile
}

// NewFFmpegEngine creates a new FFmpegEngine.
// Empty paths default to "ffmpeg" and "ffprobe" (found via PATH).
func NewFFmpegEngine(ffmpegPath, ffprobePath string) *FFmpegEngine {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegEngine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		profile:     HighestQualityMP4,
	}
}

// LoadAsset runs a single ffprobe JSON call against path.
func (e *FFmpegEngine) LoadAsset(ctx context.Context, path string) (*Asset, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	return ParseProbeJSON(path, stdout.Bytes())
}

// NewExportSession renders the composition into ffmpeg arguments. Errors in
// the composition surface here, before any process is started.
func (e *FFmpegEngine) NewExportSession(comp *Composition, video *VideoComposition, outputPath string) (ExportSession, error) {
	if outputPath == "" {
		return nil, ErrOutputPathRequired
	}
	args, err := e.buildArgs(comp, video, outputPath)
	if err != nil {
		return nil, err
	}
	return &FFmpegSession{
		ffmpegPath: e.ffmpegPath,
		args:       args,
		total:      time.Duration(comp.Duration() * float64(time.Second)),
		done:       make(chan struct{}),
	}, nil
}

// buildArgs returns the full ffmpeg argument list for an export.
func (e *FFmpegEngine) buildArgs(comp *Composition, video *VideoComposition, outputPath string) ([]string, error) {
	g, err := buildGraph(comp, video)
	if err != nil {
		return nil, err
	}

	args := []string{
		"-hide_banner",
		"-nostdin",
		"-nostats",
		"-y", // Overwrite output file without asking
	}
	for _, in := range g.inputs {
		// The layer transform already orients the frame.
		args = append(args, "-noautorotate", "-i", in.path)
	}

	p := e.profile
	args = append(args,
		"-filter_complex", strings.Join(g.filters, ";"),
		"-map", "["+g.videoOut+"]",
		"-c:v", p.VideoCodec,
		"-preset", p.Preset,
		"-crf", strconv.Itoa(p.CRF),
		"-pix_fmt", p.PixelFormat,
		"-metadata:s:v:0", "rotate=0",
	)
	if video.MaxBitRate > 0 {
		args = append(args,
			"-maxrate", strconv.Itoa(video.MaxBitRate),
			"-bufsize", strconv.Itoa(2*video.MaxBitRate),
		)
	}
	if g.audioOut != "" {
		args = append(args,
			"-map", "["+g.audioOut+"]",
			"-c:a", p.AudioCodec,
			"-b:a", p.AudioBitRate,
		)
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	args = append(args,
		"-progress", "pipe:1",
		"-f", p.Container,
		outputPath,
	)
	return args, nil
}

// Compile-time check that FFmpegSession implements ExportSession.
var _ ExportSession = (*FFmpegSession)(nil)

// FFmpegSession runs one ffmpeg export process.
type FFmpegSession struct {
	ffmpegPath string
	args       []string
	total      time.Duration

	mu        sync.RWMutex
	status    ExportStatus
	progress  float64
	err       error
	started   bool
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// Args returns the ffmpeg arguments the session runs.
func (s *FFmpegSession) Args() []string {
	return append([]string(nil), s.args...)
}

// Export runs ffmpeg and blocks until it exits. Cancelling ctx or calling
// Cancel kills the process.
func (s *FFmpegSession) Export(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	if s.cancelled {
		s.status = ExportCancelled
		s.mu.Unlock()
		close(s.done)
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = ExportExporting
	s.mu.Unlock()
	defer cancel()
	defer close(s.done)

	err := s.run(runCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.cancelled || errors.Is(ctx.Err(), context.Canceled):
		s.status = ExportCancelled
	case err != nil:
		s.status = ExportFailed
		s.err = err
	default:
		s.status = ExportCompleted
		s.progress = 1
	}
}

func (s *FFmpegSession) run(ctx context.Context) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, s.ffmpegPath, s.args...)

	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	pr := &progressReader{total: s.total, report: s.setProgress}
	pr.run(stdout)
	// drain in case the reader stopped early
	_, _ = io.Copy(io.Discard, stdout)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   s.args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// setProgress records a progress fraction, never moving backwards.
func (s *FFmpegSession) setProgress(f float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f > s.progress {
		s.progress = f
	}
}

// Status returns the current session status.
func (s *FFmpegSession) Status() ExportStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Progress returns the fraction of the output written so far.
func (s *FFmpegSession) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Err returns the ffmpeg failure, if any.
func (s *FFmpegSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Cancel kills the running ffmpeg process, or prevents it from starting.
func (s *FFmpegSession) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	s.cancelled = true
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed when Export returns.
func (s *FFmpegSession) Done() <-chan struct{} {
	return s.done
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// Package media binds the exporter to the external media engine. It models
// assets, compositions and export sessions, and implements them on top of
// the ffprobe and ffmpeg command line tools.
package media

import (
	"context"
	"errors"

	"github.com/maauso/tempo/internal/geometry"
)

// ErrNoVideoTrack is returned when an asset has no video stream to render.
var ErrNoVideoTrack = errors.New("no video track found in the input file")

// Engine is the media engine consumed by the source inspector and the export
// controller. Implementations decode, re-time, transform and encode media.
type Engine interface {
	AssetLoader

	// NewExportSession prepares an export of comp, rendered through video,
	// into outputPath. The session does not start until Export is called.
	NewExportSession(comp *Composition, video *VideoComposition, outputPath string) (ExportSession, error)
}

// AssetLoader enumerates the tracks and duration of a media file.
type AssetLoader interface {
	// LoadAsset reads container and stream metadata for path.
	LoadAsset(ctx context.Context, path string) (*Asset, error)
}

// ExportStatus is the lifecycle state of an ExportSession.
type ExportStatus int

const (
	// ExportWaiting means the session was created but Export has not begun encoding.
	ExportWaiting ExportStatus = iota
	// ExportExporting means the encoder is running.
	ExportExporting
	// ExportCompleted means the output file was written successfully.
	ExportCompleted
	// ExportFailed means the encoder stopped with an error.
	ExportFailed
	// ExportCancelled means the session was cancelled.
	ExportCancelled
	// ExportUnknown is reported by engines that cannot classify their state.
	ExportUnknown
)

// Terminal reports whether no further status change can happen.
func (s ExportStatus) Terminal() bool {
	return s == ExportCompleted || s == ExportFailed || s == ExportCancelled || s == ExportUnknown
}

func (s ExportStatus) String() string {
	switch s {
	case ExportWaiting:
		return "waiting"
	case ExportExporting:
		return "exporting"
	case ExportCompleted:
		return "completed"
	case ExportFailed:
		return "failed"
	case ExportCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExportSession is one run of the engine's export primitive.
type ExportSession interface {
	// Export runs the export and blocks until it reaches a terminal status.
	Export(ctx context.Context)

	// Status returns the current status. Safe for concurrent use.
	Status() ExportStatus

	// Progress returns the fraction of the output written, in [0, 1].
	Progress() float64

	// Err returns the failure reason once Status is ExportFailed.
	Err() error

	// Cancel stops the export. It may be called at any time, more than once.
	Cancel()
}

// Profile is the fixed output encoding profile.
type Profile struct {
	Container    string
	VideoCodec   string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitRate string
	FastStart    bool
}

// HighestQualityMP4 is the single output profile: an MPEG-4 container with
// a slow single-pass H.264 encode, AAC audio and the index moved to the front
// of the file for progressive playback.
var HighestQualityMP4 = Profile{
	Container:    "mp4",
	VideoCodec:   "libx264",
	Preset:       "slow",
	CRF:          18,
	PixelFormat:  "yuv420p",
	AudioCodec:   "aac",
	AudioBitRate: "192k",
	FastStart:    true,
}

// DisplaySize returns the size of a frame after its preferred transform.
func DisplaySize(natural geometry.Size, preferred geometry.Affine) geometry.Size {
	return preferred.ApplySize(natural).Abs()
}

// Package source inspects input files and reports the metadata the planner
// and the export controller need: duration, tracks and frame geometry.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"

	"github.com/maauso/tempo/internal/geometry"
	"github.com/maauso/tempo/internal/media"
)

// Static errors for source inspection.
var (
	// ErrNoVideoTrack is returned when the input has no video stream, for
	// example audio-only files.
	ErrNoVideoTrack = media.ErrNoVideoTrack
	// ErrUnreadableMetadata is returned when the duration or the frame
	// geometry of the input cannot be loaded.
	ErrUnreadableMetadata = errors.New("unable to read video metadata")
)

// MediaAsset is the inspected, read-only view of an input file.
type MediaAsset struct {
	// Path is the source location.
	Path string
	// Duration is the playable length in seconds.
	Duration float64
	// Video is the first video track.
	Video media.Track
	// Audio is the first audio track, nil when the input is silent.
	Audio *media.Track
	// VideoTrackCount is the number of video tracks in the container.
	VideoTrackCount int
	// AudioTrackCount is the number of audio tracks in the container.
	AudioTrackCount int
	// NaturalSize is the stored frame size of Video.
	NaturalSize geometry.Size
	// DisplaySize is NaturalSize after the preferred transform.
	DisplaySize geometry.Size
	// PreferredTransform is how stored frames are turned for display.
	PreferredTransform geometry.Affine
	// Rotation is the clockwise display rotation in degrees.
	Rotation float64
	// Asset is the engine's view of the file, used to build compositions.
	Asset *media.Asset
}

// DurationFormatted returns the duration as m:ss.
func (a *MediaAsset) DurationFormatted() string {
	total := int(a.Duration)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// FileName returns the last element of Path.
func (a *MediaAsset) FileName() string {
	return filepath.Base(a.Path)
}

// Orientation classifies PreferredTransform.
func (a *MediaAsset) Orientation() geometry.Orientation {
	return geometry.OrientationOf(a.PreferredTransform)
}

// Inspector loads MediaAssets through an AssetLoader.
type Inspector struct {
	loader media.AssetLoader
	logger *slog.Logger
}

// NewInspector creates an Inspector. A nil logger uses slog.Default().
func NewInspector(loader media.AssetLoader, logger *slog.Logger) *Inspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Inspector{loader: loader, logger: logger}
}

// Inspect reads the metadata of the file at path. It only reads.
func (i *Inspector) Inspect(ctx context.Context, path string) (*MediaAsset, error) {
	asset, err := Load(ctx, i.loader, path)
	if err != nil {
		i.logger.Warn("source inspection failed", slog.String("path", path), slog.String("error", err.Error()))
		return nil, err
	}

	i.logger.Debug("source inspected",
		slog.String("path", path),
		slog.Float64("duration", asset.Duration),
		slog.String("natural_size", sizeString(asset.NaturalSize)),
		slog.String("display_size", sizeString(asset.DisplaySize)),
		slog.Float64("rotation", asset.Rotation),
		slog.Int("video_tracks", asset.VideoTrackCount),
		slog.Int("audio_tracks", asset.AudioTrackCount),
	)
	return asset, nil
}

// Load inspects path with loader and validates what the rest of the
// pipeline relies on: at least one video track, a positive duration and a
// positive frame size.
func Load(ctx context.Context, loader media.AssetLoader, path string) (*MediaAsset, error) {
	asset, err := loader.LoadAsset(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("inspect %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadableMetadata, path, err)
	}

	videos := asset.VideoTracks()
	if len(videos) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoVideoTrack, path)
	}

	if !validDuration(asset.Duration) {
		return nil, fmt.Errorf("%w: %s: invalid duration %v", ErrUnreadableMetadata, path, asset.Duration)
	}

	video := videos[0]
	if !video.NaturalSize.Valid() {
		return nil, fmt.Errorf("%w: %s: invalid frame size %s", ErrUnreadableMetadata, path, sizeString(video.NaturalSize))
	}
	display := media.DisplaySize(video.NaturalSize, video.PreferredTransform)
	if !display.Valid() {
		return nil, fmt.Errorf("%w: %s: invalid display size %s", ErrUnreadableMetadata, path, sizeString(display))
	}

	out := &MediaAsset{
		Path:               path,
		Duration:           asset.Duration,
		Video:              video,
		VideoTrackCount:    len(videos),
		NaturalSize:        video.NaturalSize,
		DisplaySize:        display,
		PreferredTransform: video.PreferredTransform,
		Rotation:           video.Rotation,
		Asset:              asset,
	}
	if audio := asset.AudioTracks(); len(audio) > 0 {
		a := audio[0]
		out.Audio = &a
		out.AudioTrackCount = len(audio)
	}
	return out, nil
}

// validDuration rejects zero-length sources: no time range can be built
// over them.
func validDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}

func sizeString(s geometry.Size) string {
	return fmt.Sprintf("%gx%g", s.Width, s.Height)
}

package media

import (
	"github.com/maauso/tempo/internal/geometry"
)

// TrackKind identifies the media type of a track.
type TrackKind string

const (
	// KindVideo is a video stream.
	KindVideo TrackKind = "video"
	// KindAudio is an audio stream.
	KindAudio TrackKind = "audio"
)

// Track is a single stream of an asset.
type Track struct {
	// AssetPath is the file the track belongs to.
	AssetPath string
	// Index is the stream index within the container.
	Index int
	// Kind is the media type.
	Kind TrackKind
	// Codec is the codec name reported by the engine.
	Codec string
	// NaturalSize is the stored frame size (video only).
	NaturalSize geometry.Size
	// PreferredTransform is how stored frames must be turned for display (video only).
	PreferredTransform geometry.Affine
	// Rotation is the clockwise display rotation in degrees (video only).
	Rotation float64
	// Duration is the stream duration in seconds, zero when unknown.
	Duration float64
	// FrameRate is the average frame rate, zero when unknown.
	FrameRate float64
}

// Asset is a media file as seen by the engine.
type Asset struct {
	// Path is the source location.
	Path string
	// Duration is the container duration in seconds.
	Duration float64
	// Tracks lists video and audio streams in container order.
	Tracks []Track
}

// VideoTracks returns the video tracks in container order.
func (a *Asset) VideoTracks() []Track {
	return a.tracksOf(KindVideo)
}

// AudioTracks returns the audio tracks in container order.
func (a *Asset) AudioTracks() []Track {
	return a.tracksOf(KindAudio)
}

func (a *Asset) tracksOf(kind TrackKind) []Track {
	var out []Track
	for _, t := range a.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

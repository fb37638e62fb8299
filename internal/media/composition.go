package media

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/tempo/internal/geometry"
)

// Static errors for composition editing.
var (
	// ErrInvalidTimeRange is returned when a range is negative or empty where
	// content is required.
	ErrInvalidTimeRange = errors.New("invalid time range")
	// ErrTrackKindMismatch is returned when a track is inserted into a
	// composition track of another media type.
	ErrTrackKindMismatch = errors.New("track kind mismatch")
	// ErrUnknownTrack is returned when an instruction references a track
	// that is not part of the composition.
	ErrUnknownTrack = errors.New("unknown composition track")
)

// rangeTolerance absorbs rounding in container durations.
const rangeTolerance = 1e-6

// TimeRange is a span of media time in seconds.
type TimeRange struct {
	Start    float64
	Duration float64
}

// End returns Start + Duration.
func (r TimeRange) End() float64 {
	return r.Start + r.Duration
}

func (r TimeRange) valid() bool {
	return r.Start >= 0 && r.Duration >= 0 &&
		!math.IsNaN(r.Start) && !math.IsNaN(r.Duration) &&
		!math.IsInf(r.Start, 0) && !math.IsInf(r.Duration, 0)
}

// Segment maps a range of a source track onto the composition timeline.
// When Target.Duration differs from Source.Duration the segment plays
// faster or slower.
type Segment struct {
	Track  Track
	Source TimeRange
	Target TimeRange
}

// Rate returns how many seconds of source play per second of output.
func (s Segment) Rate() float64 {
	if s.Target.Duration == 0 {
		return 1
	}
	return s.Source.Duration / s.Target.Duration
}

// CompositionTrack is an editable track of a Composition.
type CompositionTrack struct {
	ID       int
	Kind     TrackKind
	Segments []Segment
}

// InsertTimeRange copies r of src onto the track at time at. Segments at or
// after at are shifted later by r.Duration. A range running past the end of
// a stream yields whatever media the stream has; container and stream
// durations routinely differ by a few milliseconds.
func (t *CompositionTrack) InsertTimeRange(r TimeRange, src Track, at float64) error {
	if src.Kind != t.Kind {
		return fmt.Errorf("%w: cannot insert %s into %s track", ErrTrackKindMismatch, src.Kind, t.Kind)
	}
	if !r.valid() || r.Duration == 0 || at < 0 || math.IsNaN(at) {
		return fmt.Errorf("%w: insert %+v at %v", ErrInvalidTimeRange, r, at)
	}

	pos := len(t.Segments)
	for i := range t.Segments {
		if t.Segments[i].Target.Start >= at {
			if pos == len(t.Segments) {
				pos = i
			}
			t.Segments[i].Target.Start += r.Duration
		}
	}

	seg := Segment{
		Track:  src,
		Source: r,
		Target: TimeRange{Start: at, Duration: r.Duration},
	}
	t.Segments = append(t.Segments, Segment{})
	copy(t.Segments[pos+1:], t.Segments[pos:])
	t.Segments[pos] = seg
	return nil
}

// ScaleTimeRange stretches or compresses the part of the track inside r so
// that it plays over toDuration. Segments after r move by the difference.
// Segments must not straddle the boundaries of r.
func (t *CompositionTrack) ScaleTimeRange(r TimeRange, toDuration float64) error {
	if !r.valid() || r.Duration == 0 || toDuration <= 0 || math.IsNaN(toDuration) || math.IsInf(toDuration, 0) {
		return fmt.Errorf("%w: scale %+v to %v", ErrInvalidTimeRange, r, toDuration)
	}

	k := toDuration / r.Duration
	shift := toDuration - r.Duration
	for i := range t.Segments {
		seg := &t.Segments[i]
		switch {
		case seg.Target.End() <= r.Start+rangeTolerance:
			// before the range
		case seg.Target.Start >= r.End()-rangeTolerance:
			seg.Target.Start += shift
		case seg.Target.Start >= r.Start-rangeTolerance && seg.Target.End() <= r.End()+rangeTolerance:
			seg.Target.Start = r.Start + (seg.Target.Start-r.Start)*k
			seg.Target.Duration *= k
		default:
			return fmt.Errorf("%w: segment %+v straddles %+v", ErrInvalidTimeRange, seg.Target, r)
		}
	}
	return nil
}

// Duration returns the end of the last segment.
func (t *CompositionTrack) Duration() float64 {
	var end float64
	for _, s := range t.Segments {
		end = math.Max(end, s.Target.End())
	}
	return end
}

// Composition is an editable multi-track timeline.
type Composition struct {
	Tracks []*CompositionTrack
	nextID int
}

// NewComposition returns an empty composition.
func NewComposition() *Composition {
	return &Composition{nextID: 1}
}

// AddTrack appends an empty track of the given kind.
func (c *Composition) AddTrack(kind TrackKind) *CompositionTrack {
	if c.nextID == 0 {
		c.nextID = 1
	}
	t := &CompositionTrack{ID: c.nextID, Kind: kind}
	c.nextID++
	c.Tracks = append(c.Tracks, t)
	return t
}

// Track returns the track with the given ID, or nil.
func (c *Composition) Track(id int) *CompositionTrack {
	for _, t := range c.Tracks {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// TracksOf returns the tracks of one kind.
func (c *Composition) TracksOf(kind TrackKind) []*CompositionTrack {
	var out []*CompositionTrack
	for _, t := range c.Tracks {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Duration returns the length of the longest track.
func (c *Composition) Duration() float64 {
	var d float64
	for _, t := range c.Tracks {
		d = math.Max(d, t.Duration())
	}
	return d
}

// LayerInstruction positions one composition track on the render canvas.
type LayerInstruction struct {
	TrackID   int
	At        float64
	Transform geometry.Affine
}

// VideoComposition describes how video tracks are rendered into frames.
type VideoComposition struct {
	// RenderSize is the output frame size.
	RenderSize geometry.Dimensions
	// FrameRate is the output frame rate.
	FrameRate int
	// MaxBitRate caps the video bit rate in bits per second; zero leaves it
	// to the encoder's quality setting.
	MaxBitRate int
	// Layers holds one instruction per rendered track.
	Layers []LayerInstruction
}

// NewVideoComposition returns a video composition for the given canvas.
func NewVideoComposition(size geometry.Dimensions, frameRate int) *VideoComposition {
	return &VideoComposition{RenderSize: size, FrameRate: frameRate}
}

// SetLayerTransform sets the transform applied to track trackID from time at.
func (v *VideoComposition) SetLayerTransform(trackID int, t geometry.Affine, at float64) {
	for i := range v.Layers {
		if v.Layers[i].TrackID == trackID {
			v.Layers[i].Transform = t
			v.Layers[i].At = at
			return
		}
	}
	v.Layers = append(v.Layers, LayerInstruction{TrackID: trackID, At: at, Transform: t})
}

// Layer returns the instruction for a track, defaulting to the identity.
func (v *VideoComposition) Layer(trackID int) LayerInstruction {
	for _, l := range v.Layers {
		if l.TrackID == trackID {
			return l
		}
	}
	return LayerInstruction{TrackID: trackID, Transform: geometry.Identity()}
}

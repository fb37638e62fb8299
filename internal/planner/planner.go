// Package planner computes how a source is rendered: the output size, the
// per-frame transform onto that canvas, and the re-timed duration.
//
// Everything here is pure. Identical inputs yield identical plans.
package planner

import (
	"errors"
	"fmt"
	"math"

	"github.com/maauso/tempo/internal/geometry"
	"github.com/maauso/tempo/internal/source"
)

// Static errors for plan preconditions.
var (
	// ErrInvalidSpeedFactor is returned when the speed factor is not a
	// finite positive number.
	ErrInvalidSpeedFactor = errors.New("invalid speed factor")
	// ErrInvalidGeometry is returned when the displayed size is not positive.
	ErrInvalidGeometry = errors.New("invalid source geometry")
	// ErrInvalidDuration is returned when the source duration is negative or
	// not finite.
	ErrInvalidDuration = errors.New("invalid source duration")
	// ErrInvalidResolution is returned for unsupported resolution policies.
	ErrInvalidResolution = errors.New("invalid resolution")
)

// Input holds everything a plan depends on.
type Input struct {
	// DisplaySize is the source frame size as displayed, after orientation.
	DisplaySize geometry.Size
	// Orientation is the source's preferred transform. Only its rotation is
	// used.
	Orientation geometry.Affine
	// Policy selects the output height.
	Policy ResolutionPolicy
	// Speed is the playback rate multiplier.
	Speed SpeedFactor
	// SourceDuration is the source length in seconds.
	SourceDuration float64
}

// RenderPlan is the computed output of one export attempt.
type RenderPlan struct {
	// RenderSize is the output canvas, always even in both dimensions.
	RenderSize geometry.Dimensions
	// Transform maps stored source frames onto the canvas.
	Transform geometry.Affine
	// OutputDuration is SourceDuration / Speed, in seconds.
	OutputDuration float64
	// SourceDuration is the duration the plan was computed for.
	SourceDuration float64
	// Speed is the factor the plan was computed for.
	Speed SpeedFactor
	// Orientation is the source orientation recognised from its transform.
	Orientation geometry.Orientation
	// MaxBitRate is the video bit-rate ceiling in bits per second.
	MaxBitRate int
}

// Plan computes the render plan for in.
//
// The canvas keeps the displayed aspect ratio. For FixedHeight the width is
// rounded to the nearest even integer, so the output aspect ratio may be off
// by up to a pixel; encoders reject odd dimensions.
//
// Quarter, half and no rotation are recognised from the orientation and
// re-applied with a translation that keeps the frame inside the canvas. Any
// other orientation, including mirrored ones, is rendered scale-only and so
// appears as stored.
func Plan(in Input) (RenderPlan, error) {
	if err := in.Speed.Validate(); err != nil {
		return RenderPlan{}, err
	}
	if !in.DisplaySize.Valid() {
		return RenderPlan{}, fmt.Errorf("%w: %gx%g", ErrInvalidGeometry, in.DisplaySize.Width, in.DisplaySize.Height)
	}
	if in.SourceDuration < 0 || math.IsNaN(in.SourceDuration) || math.IsInf(in.SourceDuration, 0) {
		return RenderPlan{}, fmt.Errorf("%w: %v", ErrInvalidDuration, in.SourceDuration)
	}

	size := renderSize(in.DisplaySize, in.Policy)
	orientation := geometry.OrientationOf(in.Orientation)

	return RenderPlan{
		RenderSize:     size,
		Transform:      finalTransform(in.DisplaySize, size, orientation),
		OutputDuration: in.SourceDuration / float64(in.Speed),
		SourceDuration: in.SourceDuration,
		Speed:          in.Speed,
		Orientation:    orientation,
		MaxBitRate:     in.Policy.BitRate(),
	}, nil
}

// ForAsset plans the export of an inspected source.
func ForAsset(asset *source.MediaAsset, policy ResolutionPolicy, speed SpeedFactor) (RenderPlan, error) {
	if asset == nil {
		return RenderPlan{}, fmt.Errorf("%w: no source", ErrInvalidGeometry)
	}
	return Plan(Input{
		DisplaySize:    asset.DisplaySize,
		Orientation:    asset.PreferredTransform,
		Policy:         policy,
		Speed:          speed,
		SourceDuration: asset.Duration,
	})
}

func renderSize(display geometry.Size, policy ResolutionPolicy) geometry.Dimensions {
	h, ok := policy.Height()
	if !ok {
		return geometry.Dimensions{
			Width:  geometry.RoundEven(display.Width),
			Height: geometry.RoundEven(display.Height),
		}
	}
	return geometry.Dimensions{
		Width:  geometry.RoundEven(float64(h) * display.AspectRatio()),
		Height: h,
	}
}

// finalTransform maps stored frames onto the canvas. Scale factors relate
// displayed to target sizes; for quarter turns they are applied along the
// stored axes, which end up swapped on screen.
func finalTransform(display geometry.Size, target geometry.Dimensions, o geometry.Orientation) geometry.Affine {
	w, h := float64(target.Width), float64(target.Height)
	sx, sy := w/display.Width, h/display.Height

	switch o {
	case geometry.OrientationRight:
		return geometry.Scale(sy, sx).
			Concat(geometry.RotateDegrees(90)).
			Concat(geometry.Translate(w, 0))
	case geometry.OrientationLeft:
		return geometry.Scale(sy, sx).
			Concat(geometry.RotateDegrees(-90)).
			Concat(geometry.Translate(0, h))
	case geometry.OrientationDown:
		return geometry.Scale(sx, sy).
			Concat(geometry.RotateDegrees(180)).
			Concat(geometry.Translate(w, h))
	default:
		return geometry.Scale(sx, sy)
	}
}

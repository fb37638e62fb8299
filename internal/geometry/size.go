package geometry

import (
	"fmt"
	"math"
)

// Point is a position in pixels.
type Point struct {
	X, Y float64
}

// Size is a width and height in pixels. Components may be fractional.
type Size struct {
	Width, Height float64
}

// Abs returns the size with both components made non-negative.
func (s Size) Abs() Size {
	return Size{Width: math.Abs(s.Width), Height: math.Abs(s.Height)}
}

// Valid reports whether both components are finite and strictly positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0 &&
		!math.IsInf(s.Width, 0) && !math.IsInf(s.Height, 0)
}

// AspectRatio returns width divided by height.
func (s Size) AspectRatio() float64 {
	return s.Width / s.Height
}

// Dimensions is an integral frame size, as required by encoders.
type Dimensions struct {
	Width, Height int
}

// Size converts d to a Size.
func (d Dimensions) Size() Size {
	return Size{Width: float64(d.Width), Height: float64(d.Height)}
}

// Even reports whether both dimensions are even.
func (d Dimensions) Even() bool {
	return d.Width%2 == 0 && d.Height%2 == 0
}

// String formats d as "WxH".
func (d Dimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// RoundEven rounds v to the nearest even integer, never returning less than 2.
func RoundEven(v float64) int {
	n := int(math.Round(v/2)) * 2
	if n < 2 {
		return 2
	}
	return n
}

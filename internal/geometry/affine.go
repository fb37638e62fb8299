// Package geometry provides the 2D affine transforms and sizes used to
// orient and scale video frames.
//
// Transforms follow the row-vector convention used by video toolkits:
//
//	x' = A*x + C*y + TX
//	y' = B*x + D*y + TY
//
// The origin is the top-left corner of the frame and y grows downwards, so a
// positive rotation angle turns the frame clockwise on screen.
package geometry

import "math"

// Affine is a 2D affine transform.
type Affine struct {
	A, B, C, D float64
	TX, TY     float64
}

// Identity returns the identity transform.
func Identity() Affine {
	return Affine{A: 1, D: 1}
}

// Scale returns a transform that scales by sx horizontally and sy vertically.
func Scale(sx, sy float64) Affine {
	return Affine{A: sx, D: sy}
}

// Translate returns a transform that moves points by (tx, ty).
func Translate(tx, ty float64) Affine {
	return Affine{A: 1, D: 1, TX: tx, TY: ty}
}

// Rotate returns a rotation by angle radians. Multiples of a quarter turn
// produce exact matrices so that orientation checks can compare entries
// without a tolerance.
func Rotate(angle float64) Affine {
	if deg, ok := quarterTurnDegrees(angle * 180 / math.Pi); ok {
		return RotateDegrees(deg)
	}
	sin, cos := math.Sincos(angle)
	return Affine{A: cos, B: sin, C: -sin, D: cos}
}

// RotateDegrees returns a rotation by deg degrees.
func RotateDegrees(deg float64) Affine {
	q, ok := quarterTurnDegrees(deg)
	if !ok {
		return Rotate(deg * math.Pi / 180)
	}
	switch q {
	case 90:
		return Affine{B: 1, C: -1}
	case 180:
		return Affine{A: -1, D: -1}
	case 270:
		return Affine{B: -1, C: 1}
	default:
		return Identity()
	}
}

// Concat returns the transform that applies t first and then u.
func (t Affine) Concat(u Affine) Affine {
	return Affine{
		A:  t.A*u.A + t.B*u.C,
		B:  t.A*u.B + t.B*u.D,
		C:  t.C*u.A + t.D*u.C,
		D:  t.C*u.B + t.D*u.D,
		TX: t.TX*u.A + t.TY*u.C + u.TX,
		TY: t.TX*u.B + t.TY*u.D + u.TY,
	}
}

// Apply maps a point through the transform.
func (t Affine) Apply(p Point) Point {
	return Point{
		X: t.A*p.X + t.C*p.Y + t.TX,
		Y: t.B*p.X + t.D*p.Y + t.TY,
	}
}

// ApplySize maps a size through the linear part of the transform. The
// result may have negative components; use Abs for displayed sizes.
func (t Affine) ApplySize(s Size) Size {
	return Size{
		Width:  t.A*s.Width + t.C*s.Height,
		Height: t.B*s.Width + t.D*s.Height,
	}
}

// IsIdentity reports whether t is exactly the identity.
func (t Affine) IsIdentity() bool {
	return t == Identity()
}

// IsAxisAligned reports whether t maps the axes onto the axes, i.e. it is a
// combination of quarter turns, flips, scales and translations.
func (t Affine) IsAxisAligned() bool {
	return (t.B == 0 && t.C == 0 && t.A != 0 && t.D != 0) ||
		(t.A == 0 && t.D == 0 && t.B != 0 && t.C != 0)
}

// quarterTurnDegrees normalises deg into [0, 360) and reports whether it is
// a multiple of 90.
func quarterTurnDegrees(deg float64) (float64, bool) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, false
	}
	n := math.Mod(deg, 360)
	if n < 0 {
		n += 360
	}
	r := math.Round(n/90) * 90
	if math.Abs(n-r) > 1e-9 {
		return n, false
	}
	if r == 360 {
		r = 0
	}
	return r, true
}

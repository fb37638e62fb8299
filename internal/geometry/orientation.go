package geometry

// Orientation classifies the rotation component of a preferred transform.
type Orientation int

const (
	// OrientationUp means the stored frame is displayed as is.
	OrientationUp Orientation = iota
	// OrientationRight means the stored frame is turned 90° clockwise for display.
	OrientationRight
	// OrientationLeft means the stored frame is turned 90° counter-clockwise for display.
	OrientationLeft
	// OrientationDown means the stored frame is turned upside down for display.
	OrientationDown
	// OrientationOther covers mirrored and non axis-aligned transforms.
	OrientationOther
)

// String returns a short description of the orientation.
func (o Orientation) String() string {
	switch o {
	case OrientationUp:
		return "0°"
	case OrientationRight:
		return "+90°"
	case OrientationLeft:
		return "-90°"
	case OrientationDown:
		return "180°"
	default:
		return "other"
	}
}

// QuarterTurn reports whether the orientation swaps width and height.
func (o Orientation) QuarterTurn() bool {
	return o == OrientationRight || o == OrientationLeft
}

// Degrees returns the clockwise rotation of a canonical orientation.
func (o Orientation) Degrees() int {
	switch o {
	case OrientationRight:
		return 90
	case OrientationLeft:
		return -90
	case OrientationDown:
		return 180
	default:
		return 0
	}
}

// OrientationOf recognises the canonical rotations from the transform's
// linear part. Translation is ignored.
func OrientationOf(t Affine) Orientation {
	switch {
	case t.A == 1 && t.B == 0 && t.C == 0 && t.D == 1:
		return OrientationUp
	case t.A == 0 && t.B == 1 && t.C == -1 && t.D == 0:
		return OrientationRight
	case t.A == 0 && t.B == -1 && t.C == 1 && t.D == 0:
		return OrientationLeft
	case t.A == -1 && t.B == 0 && t.C == 0 && t.D == -1:
		return OrientationDown
	default:
		return OrientationOther
	}
}

// DisplayTransform returns the preferred transform for a frame of the given
// stored size rotated clockwise by deg degrees. The translation keeps the
// rotated frame in the positive quadrant.
func DisplayTransform(stored Size, deg float64) Affine {
	r := RotateDegrees(deg)
	switch OrientationOf(r) {
	case OrientationRight:
		return r.Concat(Translate(stored.Height, 0))
	case OrientationLeft:
		return r.Concat(Translate(0, stored.Width))
	case OrientationDown:
		return r.Concat(Translate(stored.Width, stored.Height))
	default:
		return r
	}
}

package planner

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ResolutionPolicy selects the output height. The zero value keeps the
// source resolution.
type ResolutionPolicy struct {
	height int
}

var (
	// Original keeps the displayed source size, rounded to even dimensions.
	Original = ResolutionPolicy{}
	// P480 scales to 480 lines.
	P480 = ResolutionPolicy{height: 480}
	// P720 scales to 720 lines.
	P720 = ResolutionPolicy{height: 720}
	// P1080 scales to 1080 lines.
	P1080 = ResolutionPolicy{height: 1080}
)

// Resolutions lists the selectable policies in menu order.
func Resolutions() []ResolutionPolicy {
	return []ResolutionPolicy{Original, P480, P720, P1080}
}

// FixedHeight returns the policy for one of the supported heights.
func FixedHeight(h int) (ResolutionPolicy, error) {
	switch h {
	case 480, 720, 1080:
		return ResolutionPolicy{height: h}, nil
	default:
		return ResolutionPolicy{}, fmt.Errorf("%w: %d", ErrInvalidResolution, h)
	}
}

// ParseResolution parses "original", "480p", "720p" or "1080p". Matching is
// case-insensitive and the empty string means Original.
func ParseResolution(s string) (ResolutionPolicy, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "" || v == "original" {
		return Original, nil
	}
	h, err := strconv.Atoi(strings.TrimSuffix(v, "p"))
	if err != nil {
		return ResolutionPolicy{}, fmt.Errorf("%w: %q", ErrInvalidResolution, s)
	}
	return FixedHeight(h)
}

// Height returns the target height, or false for Original.
func (p ResolutionPolicy) Height() (int, bool) {
	return p.height, p.height > 0
}

// String returns "Original" or the height followed by "p".
func (p ResolutionPolicy) String() string {
	if p.height == 0 {
		return "Original"
	}
	return strconv.Itoa(p.height) + "p"
}

// BitRate returns the video bit-rate ceiling in bits per second.
func (p ResolutionPolicy) BitRate() int {
	switch p.height {
	case 480:
		return 1_000_000
	case 720:
		return 2_500_000
	case 1080:
		return 5_000_000
	default:
		return 8_000_000
	}
}

// SpeedFactor multiplies the playback rate: 2 plays twice as fast and
// halves the duration.
type SpeedFactor float64

const (
	// MinSpeed is the slowest supported factor.
	MinSpeed SpeedFactor = 0.1
	// MaxSpeed is the fastest supported factor.
	MaxSpeed SpeedFactor = 4
)

// Presets returns the speed factors offered to users.
func Presets() []SpeedFactor {
	return []SpeedFactor{0.5, 0.75, 1, 1.25, 1.5, 1.75, 2, 2.5, 3, 4}
}

// Validate rejects factors that are not finite and strictly positive.
func (s SpeedFactor) Validate() error {
	f := float64(s)
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidSpeedFactor, f)
	}
	return nil
}

// Label formats the factor for display, e.g. "0.75×" or "2×".
func (s SpeedFactor) Label() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64) + "×"
}

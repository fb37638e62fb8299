// Package audio builds the audio filters used to re-time sound tracks.
package audio

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrInvalidTempo is returned when a tempo factor is not a positive finite number.
var ErrInvalidTempo = errors.New("invalid tempo: must be positive")

// atempo accepts 0.5..2.0 on every ffmpeg release; wider ranges need chaining.
const (
	minStage = 0.5
	maxStage = 2.0
)

// TempoFilters returns the atempo stages whose combined factor equals factor.
// A factor of 2 plays twice as fast. atempo stretches time without shifting
// pitch. A factor of exactly 1 needs no stage.
func TempoFilters(factor float64) ([]string, error) {
	if !(factor > 0) || math.IsInf(factor, 0) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidTempo, factor)
	}

	var stages []string
	for factor > maxStage {
		stages = append(stages, stage(maxStage))
		factor /= maxStage
	}
	for factor < minStage {
		stages = append(stages, stage(minStage))
		factor /= minStage
	}
	if factor != 1 {
		stages = append(stages, stage(factor))
	}
	return stages, nil
}

// TempoChain returns TempoFilters joined into a filtergraph chain, or an
// empty string when no stage is needed.
func TempoChain(factor float64) (string, error) {
	stages, err := TempoFilters(factor)
	if err != nil {
		return "", err
	}
	return strings.Join(stages, ","), nil
}

func stage(f float64) string {
	return "atempo=" + strconv.FormatFloat(f, 'f', -1, 64)
}

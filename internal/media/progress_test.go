package media

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProgressReader(t *testing.T) {
	input := strings.Join([]string{
		"frame=0",
		"out_time_us=N/A",
		"progress=continue",
		"frame=75",
		"out_time_us=2500000",
		"out_time_ms=2500000",
		"out_time=00:00:02.500000",
		"progress=continue",
		"frame=150",
		"out_time=00:00:05.000000",
		"progress=continue",
		"out_time_us=10000000",
		"progress=end",
	}, "\n")

	var got []float64
	pr := &progressReader{
		total:  10 * time.Second,
		report: func(f float64) { got = append(got, f) },
	}
	pr.run(strings.NewReader(input))

	assert.Equal(t, []float64{0.25, 0.5, 1}, got)
}

func TestFraction(t *testing.T) {
	assert.Equal(t, 0.0, fraction(time.Second, 0))
	assert.Equal(t, 0.0, fraction(-time.Second, time.Minute))
	assert.Equal(t, 1.0, fraction(2*time.Minute, time.Minute))
	assert.Equal(t, 0.5, fraction(30*time.Second, time.Minute))
}

func TestParseOutTime(t *testing.T) {
	d, ok := parseOutTime("01:02:03.500000")
	assert.True(t, ok)
	assert.Equal(t, time.Hour+2*time.Minute+3500*time.Millisecond, d)

	_, ok = parseOutTime("N/A")
	assert.False(t, ok)

	_, ok = parseOutTime("-00:00:01.000000")
	assert.False(t, ok)
}

func TestFFmpegSession_ProgressNeverDecreases(t *testing.T) {
	s := &FFmpegSession{done: make(chan struct{})}
	s.setProgress(0.4)
	s.setProgress(0.2)
	assert.Equal(t, 0.4, s.Progress())
}

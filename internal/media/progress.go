package media

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"time"
)

// progressReader consumes ffmpeg's `-progress` output: blocks of key=value
// lines, each closed by progress=continue or progress=end.
type progressReader struct {
	total  time.Duration
	report func(fraction float64)
}

// run reads r until EOF and reports the output position of every block as
// a fraction of total.
func (p *progressReader) run(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var outTime time.Duration
	var haveTime bool

	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "out_time_us":
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 {
				outTime = time.Duration(us) * time.Microsecond
				haveTime = true
			}
		case "out_time_ms":
			// despite the name, ffmpeg reports microseconds here too
			if us, err := strconv.ParseInt(value, 10, 64); err == nil && us >= 0 && !haveTime {
				outTime = time.Duration(us) * time.Microsecond
				haveTime = true
			}
		case "out_time":
			if d, ok := parseOutTime(value); ok && !haveTime {
				outTime = d
				haveTime = true
			}
		case "progress":
			if haveTime {
				p.report(fraction(outTime, p.total))
			}
			haveTime = false
		}
	}
}

// fraction returns done/total clamped to [0, 1].
func fraction(done, total time.Duration) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(done) / float64(total)
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}

// parseOutTime parses "HH:MM:SS.micro".
func parseOutTime(s string) (time.Duration, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	sec, err := strconv.ParseFloat(parts[2], 64)
	if err != nil || h < 0 || m < 0 || sec < 0 {
		return 0, false
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
		time.Duration(sec*float64(time.Second)), true
}

package media

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/maauso/tempo/internal/geometry"
)

// ParseProbeJSON converts the output of
// `ffprobe -print_format json -show_format -show_streams` into an Asset.
// Exported for testing without a real ffprobe binary.
func ParseProbeJSON(path string, data []byte) (*Asset, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	asset := &Asset{
		Path:     path,
		Duration: parseFloat(raw.Format.Duration),
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			if s.Disposition["attached_pic"] == 1 {
				continue
			}
			asset.Tracks = append(asset.Tracks, convertVideo(path, s))
		case "audio":
			asset.Tracks = append(asset.Tracks, convertAudio(path, s))
		}
	}

	// Some containers only report durations per stream.
	if asset.Duration <= 0 {
		for _, t := range asset.Tracks {
			if t.Duration > asset.Duration {
				asset.Duration = t.Duration
			}
		}
	}

	return asset, nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	Duration     string            `json:"duration"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
	SideDataList []ffprobeSideData `json:"side_data_list"`
}

type ffprobeSideData struct {
	SideDataType string  `json:"side_data_type"`
	Rotation     float64 `json:"rotation"`
}

// --- Conversion from wire types to domain types ---

func convertVideo(path string, s *ffprobeStream) Track {
	natural := geometry.Size{Width: float64(s.Width), Height: float64(s.Height)}
	rotation := streamRotation(s)
	return Track{
		AssetPath:          path,
		Index:              s.Index,
		Kind:               KindVideo,
		Codec:              s.CodecName,
		NaturalSize:        natural,
		PreferredTransform: geometry.DisplayTransform(natural, rotation),
		Rotation:           rotation,
		Duration:           parseFloat(s.Duration),
		FrameRate:          parseRate(s.AvgFrameRate),
	}
}

func convertAudio(path string, s *ffprobeStream) Track {
	return Track{
		AssetPath:          path,
		Index:              s.Index,
		Kind:               KindAudio,
		Codec:              s.CodecName,
		PreferredTransform: geometry.Identity(),
		Duration:           parseFloat(s.Duration),
	}
}

// streamRotation returns the clockwise display rotation in degrees. The
// display matrix side data reports counter-clockwise degrees; the legacy
// rotate tag reports clockwise degrees.
func streamRotation(s *ffprobeStream) float64 {
	for _, sd := range s.SideDataList {
		if sd.SideDataType == "Display Matrix" {
			return normalizeDegrees(-sd.Rotation)
		}
	}
	if v, ok := s.Tags["rotate"]; ok {
		return normalizeDegrees(parseFloat(v))
	}
	return 0
}

func normalizeDegrees(deg float64) float64 {
	n := math.Mod(deg, 360)
	if n < 0 {
		n += 360
	}
	if n == 0 {
		return 0 // drop negative zero
	}
	return n
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// parseRate parses ffprobe rationals such as "30000/1001".
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return parseFloat(num)
	}
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return parseFloat(num) / d
}

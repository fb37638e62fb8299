package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/tempo/internal/audio"
	"github.com/maauso/tempo/internal/geometry"
)

// Static errors for filtergraph construction.
var (
	// ErrUnsupportedTransform is returned for layer transforms that are not
	// axis-aligned; ffmpeg has no cheap filter for arbitrary rotations.
	ErrUnsupportedTransform = errors.New("unsupported layer transform")
	// ErrEmptyComposition is returned when there is nothing to render.
	ErrEmptyComposition = errors.New("composition has no video segments")
	// ErrInvalidRenderSize is returned when the canvas is not a positive even size.
	ErrInvalidRenderSize = errors.New("invalid render size: width and height must be positive and even")
)

// orientFilters returns the transpose/flip filters that reproduce the linear
// part of t, ignoring scale. The layer transform maps the stored frame onto
// the canvas, so only the signs and the axis swap matter.
func orientFilters(t geometry.Affine) ([]string, error) {
	if !t.IsAxisAligned() {
		return nil, fmt.Errorf("%w: %+v", ErrUnsupportedTransform, t)
	}

	if t.B == 0 && t.C == 0 {
		var out []string
		if t.A < 0 {
			out = append(out, "hflip")
		}
		if t.D < 0 {
			out = append(out, "vflip")
		}
		return out, nil
	}

	// x' = C*y, y' = B*x: the axes are swapped.
	switch {
	case t.B > 0 && t.C < 0:
		return []string{"transpose=clock"}, nil
	case t.B < 0 && t.C > 0:
		return []string{"transpose=cclock"}, nil
	case t.B > 0 && t.C > 0:
		return []string{"transpose=cclock_flip"}, nil
	default:
		return []string{"transpose=clock_flip"}, nil
	}
}

// input is one distinct source file of a composition.
type input struct {
	path  string
	index int
}

// graph is a rendered ffmpeg filtergraph with its output labels.
type graph struct {
	inputs   []input
	filters  []string
	videoOut string
	audioOut string
}

// buildGraph renders the composition into an ffmpeg filter_complex. Every
// segment is trimmed from its source, re-timed, and concatenated per track.
// Only the first video and first audio track are rendered.
func buildGraph(comp *Composition, video *VideoComposition) (*graph, error) {
	if video.RenderSize.Width <= 0 || video.RenderSize.Height <= 0 || !video.RenderSize.Even() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRenderSize, video.RenderSize)
	}

	vtracks := comp.TracksOf(KindVideo)
	if len(vtracks) == 0 || len(vtracks[0].Segments) == 0 {
		return nil, ErrEmptyComposition
	}
	for _, l := range video.Layers {
		if tr := comp.Track(l.TrackID); tr == nil || tr.Kind != KindVideo {
			return nil, fmt.Errorf("%w: %d", ErrUnknownTrack, l.TrackID)
		}
	}

	g := &graph{}
	inputIndex := func(path string) int {
		for _, in := range g.inputs {
			if in.path == path {
				return in.index
			}
		}
		in := input{path: path, index: len(g.inputs)}
		g.inputs = append(g.inputs, in)
		return in.index
	}

	vt := vtracks[0]
	layer := video.Layer(vt.ID)
	orient, err := orientFilters(layer.Transform)
	if err != nil {
		return nil, err
	}

	var vlabels []string
	for i, seg := range vt.Segments {
		label := fmt.Sprintf("v%d", i)
		chain := []string{
			fmt.Sprintf("trim=start=%s:duration=%s", ffFloat(seg.Source.Start), ffFloat(seg.Source.Duration)),
			fmt.Sprintf("setpts=%s*(PTS-STARTPTS)", ffFloat(1/seg.Rate())),
		}
		chain = append(chain, orient...)
		chain = append(chain,
			fmt.Sprintf("scale=%d:%d", video.RenderSize.Width, video.RenderSize.Height),
			"setsar=1",
		)
		g.filters = append(g.filters, fmt.Sprintf("[%d:%d]%s[%s]",
			inputIndex(seg.Track.AssetPath), seg.Track.Index, strings.Join(chain, ","), label))
		vlabels = append(vlabels, label)
	}
	g.videoOut = concat(g, vlabels, "vcat", 1, 0)
	if video.FrameRate > 0 {
		g.filters = append(g.filters, fmt.Sprintf("[%s]fps=%d,format=yuv420p[vout]", g.videoOut, video.FrameRate))
	} else {
		g.filters = append(g.filters, fmt.Sprintf("[%s]format=yuv420p[vout]", g.videoOut))
	}
	g.videoOut = "vout"

	if atracks := comp.TracksOf(KindAudio); len(atracks) > 0 && len(atracks[0].Segments) > 0 {
		var alabels []string
		for i, seg := range atracks[0].Segments {
			label := fmt.Sprintf("a%d", i)
			chain := []string{
				fmt.Sprintf("atrim=start=%s:duration=%s", ffFloat(seg.Source.Start), ffFloat(seg.Source.Duration)),
				"asetpts=PTS-STARTPTS",
			}
			tempo, err := audio.TempoFilters(seg.Rate())
			if err != nil {
				return nil, err
			}
			chain = append(chain, tempo...)
			g.filters = append(g.filters, fmt.Sprintf("[%d:%d]%s[%s]",
				inputIndex(seg.Track.AssetPath), seg.Track.Index, strings.Join(chain, ","), label))
			alabels = append(alabels, label)
		}
		g.audioOut = concat(g, alabels, "acat", 0, 1)
	}

	return g, nil
}

// concat joins segment labels with the concat filter; a single label is
// passed through unchanged.
func concat(g *graph, labels []string, out string, v, a int) string {
	if len(labels) == 1 {
		return labels[0]
	}
	var b strings.Builder
	for _, l := range labels {
		b.WriteString("[" + l + "]")
	}
	g.filters = append(g.filters, fmt.Sprintf("%sconcat=n=%d:v=%d:a=%d[%s]", b.String(), len(labels), v, a, out))
	return out
}

func ffFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

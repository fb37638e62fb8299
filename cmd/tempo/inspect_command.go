package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

type inspectOutput struct {
	File              string      `json:"file"`
	Path              string      `json:"path"`
	Duration          float64     `json:"duration"`
	DurationFormatted string      `json:"duration_formatted"`
	StoredWidth       float64     `json:"stored_width"`
	StoredHeight      float64     `json:"stored_height"`
	DisplayWidth      float64     `json:"display_width"`
	DisplayHeight     float64     `json:"display_height"`
	Rotation          float64     `json:"rotation"`
	Orientation       string      `json:"orientation"`
	VideoCodec        string      `json:"video_codec,omitempty"`
	FrameRate         float64     `json:"frame_rate,omitempty"`
	VideoTracks       int         `json:"video_tracks"`
	AudioTracks       int         `json:"audio_tracks"`
	Plan              *planOutput `json:"plan,omitempty"`
}

type planOutput struct {
	Resolution     string  `json:"resolution"`
	Speed          float64 `json:"speed"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	OutputDuration float64 `json:"output_duration"`
	MaxBitRate     int     `json:"max_bit_rate"`
}

func newInspectCommand(ctx *commandContext) *cobra.Command {
	var speed float64
	var resolution string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect <input>",
		Short: "Show source metadata and the render plan for a speed and resolution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := planner.ParseResolution(resolution)
			if err != nil {
				return userError{err}
			}

			engine, _, err := ctx.engine()
			if err != nil {
				return err
			}
			asset, err := source.NewInspector(engine, ctx.logger(cmd.ErrOrStderr())).Inspect(cmd.Context(), args[0])
			if err != nil {
				return userError{err}
			}

			view := describe(asset)
			plan, err := planner.ForAsset(asset, policy, planner.SpeedFactor(speed))
			if err != nil {
				return userError{err}
			}
			view.Plan = &planOutput{
				Resolution:     policy.String(),
				Speed:          float64(plan.Speed),
				Width:          plan.RenderSize.Width,
				Height:         plan.RenderSize.Height,
				OutputDuration: plan.OutputDuration,
				MaxBitRate:     plan.MaxBitRate,
			}

			if jsonOutput {
				return writeJSON(cmd, view)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:        %s\n", view.File)
			fmt.Fprintf(out, "Duration:    %s (%.3fs)\n", view.DurationFormatted, view.Duration)
			fmt.Fprintf(out, "Stored size: %gx%g\n", view.StoredWidth, view.StoredHeight)
			fmt.Fprintf(out, "Display:     %gx%g (%s, %g°)\n", view.DisplayWidth, view.DisplayHeight, view.Orientation, view.Rotation)
			if view.VideoCodec != "" {
				fmt.Fprintf(out, "Video:       %s %.2f fps\n", view.VideoCodec, view.FrameRate)
			}
			fmt.Fprintf(out, "Tracks:      %d video, %d audio\n", view.VideoTracks, view.AudioTracks)
			fmt.Fprintf(out, "Plan:        %s at %s → %dx%d, %s, %.1f Mbps max\n",
				view.Plan.Resolution,
				plan.Speed.Label(),
				view.Plan.Width,
				view.Plan.Height,
				formatSeconds(view.Plan.OutputDuration),
				float64(view.Plan.MaxBitRate)/1e6,
			)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&speed, "speed", "s", 1, "Playback rate multiplier for the plan")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "original", "Output resolution for the plan")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func describe(asset *source.MediaAsset) inspectOutput {
	return inspectOutput{
		File:              asset.FileName(),
		Path:              asset.Path,
		Duration:          asset.Duration,
		DurationFormatted: asset.DurationFormatted(),
		StoredWidth:       asset.NaturalSize.Width,
		StoredHeight:      asset.NaturalSize.Height,
		DisplayWidth:      asset.DisplaySize.Width,
		DisplayHeight:     asset.DisplaySize.Height,
		Rotation:          asset.Rotation,
		Orientation:       asset.Orientation().String(),
		VideoCodec:        asset.Video.Codec,
		FrameRate:         asset.Video.FrameRate,
		VideoTracks:       asset.VideoTrackCount,
		AudioTracks:       asset.AudioTrackCount,
	}
}

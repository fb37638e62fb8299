package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maauso/tempo/internal/export"
	"github.com/maauso/tempo/internal/planner"
	"github.com/maauso/tempo/internal/source"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var speed float64
	var resolution string
	var quiet bool

	cmd := &cobra.Command{
		Use:   "export <input> <output>",
		Short: "Re-time and resize a video into an MP4 file",
		Long: "Export plays the input at --speed times its rate, scales it to --resolution\n" +
			"and writes an H.264/AAC MP4. Press Ctrl-C to cancel; the partial output is removed.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := planner.ParseResolution(resolution)
			if err != nil {
				return userError{err}
			}
			if err := planner.SpeedFactor(speed).Validate(); err != nil {
				return userError{err}
			}

			engine, cfg, err := ctx.engine()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.ErrOrStderr())

			asset, err := source.NewInspector(engine, logger).Inspect(cmd.Context(), args[0])
			if err != nil {
				return userError{err}
			}

			plan, err := planner.ForAsset(asset, policy, planner.SpeedFactor(speed))
			if err != nil {
				return userError{err}
			}

			output, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("resolve output path: %w", err)
			}

			ctrl := export.NewController(engine, logger,
				export.WithPollInterval(cfg.ProgressInterval),
				export.WithFrameRate(cfg.FrameRate),
			)
			job, err := ctrl.Start(cmd.Context(), asset, plan, output)
			if err != nil {
				return userError{err}
			}

			out := cmd.OutOrStdout()
			if quiet {
				out = io.Discard
			}
			fmt.Fprintf(out, "%s (%s) → %dx%d, %s, %s\n",
				asset.FileName(),
				asset.DurationFormatted(),
				plan.RenderSize.Width,
				plan.RenderSize.Height,
				plan.Speed.Label(),
				formatSeconds(plan.OutputDuration),
			)
			printer := newProgressPrinter(out, isTerminal(out))
			for p := range job.Progress() {
				printer.update(p)
			}
			printer.finish()

			res := job.Result()
			if res.State != export.StateCompleted {
				return userError{res.Err}
			}
			fmt.Fprintf(out, "Saved %s\n", res.OutputPath)
			return nil
		},
	}

	cmd.Flags().Float64VarP(&speed, "speed", "s", 1, "Playback rate multiplier, e.g. 0.5 or 2")
	cmd.Flags().StringVarP(&resolution, "resolution", "r", "original", "Output resolution: original, 480p, 720p or 1080p")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not print progress")

	return cmd
}

// progressPrinter redraws one line on a terminal and prints a line per
// ten percent elsewhere.
type progressPrinter struct {
	out         io.Writer
	interactive bool
	last        int
	printed     bool
}

func newProgressPrinter(out io.Writer, interactive bool) *progressPrinter {
	return &progressPrinter{out: out, interactive: interactive, last: -1}
}

func (p *progressPrinter) update(fraction float64) {
	percent := int(fraction * 100)
	if p.interactive {
		fmt.Fprintf(p.out, "\rExporting %3d%%", percent)
		p.printed = true
		return
	}
	step := percent / 10 * 10
	if step <= p.last {
		return
	}
	p.last = step
	fmt.Fprintf(p.out, "Exporting %3d%%\n", step)
}

func (p *progressPrinter) finish() {
	if p.interactive && p.printed {
		fmt.Fprintln(p.out)
	}
}

// formatSeconds renders a duration in seconds as m:ss.
func formatSeconds(sec float64) string {
	total := int(sec + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var ffmpegFlag string
	var ffprobeFlag string
	var verboseFlag bool

	ctx := newCommandContext(&ffmpegFlag, &ffprobeFlag, &verboseFlag)
	return buildRootCommand(ctx, &ffmpegFlag, &ffprobeFlag, &verboseFlag)
}

func buildRootCommand(ctx *commandContext, ffmpegFlag, ffprobeFlag *string, verboseFlag *bool) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tempo",
		Short:         "Change the playback speed and resolution of a video",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(ffmpegFlag, "ffmpeg", "", "Path to the ffmpeg binary (default $FFMPEG_PATH or ffmpeg)")
	rootCmd.PersistentFlags().StringVar(ffprobeFlag, "ffprobe", "", "Path to the ffprobe binary (default $FFPROBE_PATH or ffprobe)")
	rootCmd.PersistentFlags().BoolVarP(verboseFlag, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newInspectCommand(ctx))
	rootCmd.AddCommand(newPresetsCommand())

	return rootCmd
}

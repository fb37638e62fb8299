package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/tempo/internal/planner"
)

func newPresetsCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the speed presets and output resolutions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			type resolution struct {
				Name       string `json:"name"`
				MaxBitRate int    `json:"max_bit_rate"`
			}
			var speeds []string
			for _, s := range planner.Presets() {
				speeds = append(speeds, s.Label())
			}
			var resolutions []resolution
			for _, r := range planner.Resolutions() {
				resolutions = append(resolutions, resolution{Name: r.String(), MaxBitRate: r.BitRate()})
			}

			if jsonOutput {
				return writeJSON(cmd, map[string]any{
					"speeds":      speeds,
					"resolutions": resolutions,
				})
			}

			rows := make([][]string, 0, len(resolutions))
			for _, r := range resolutions {
				rows = append(rows, []string{r.Name, fmt.Sprintf("%.1f Mbps", float64(r.MaxBitRate)/1e6)})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Speeds: %s\n\n", strings.Join(speeds, "  "))
			fmt.Fprintln(out, renderTable(
				[]string{"Resolution", "Max bit rate"},
				rows,
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"persona/internal/quality"
)

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "Show the quality scoring presets and their thresholds",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range []string{"default", "strict", "lenient"} {
				cfg, err := quality.Preset(name)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s\n", name)
				fmt.Fprintf(out, "  pass threshold  %.0f\n", cfg.QualityThreshold)
				fmt.Fprintf(out, "  tiers           excellent>=%.0f good>=%.0f acceptable>=%.0f poor>=%.0f\n",
					cfg.Tiers.Excellent, cfg.Tiers.Good, cfg.Tiers.Acceptable, cfg.Tiers.Poor)
				fmt.Fprintf(out, "  min goals       %d\n\n", cfg.MinGoals)
			}
			return nil
		},
	}
}

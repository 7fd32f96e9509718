package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/battconv/battconv/internal/health"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run a one-shot health check and print diagnostics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configDir)
		if err != nil {
			return err
		}
		a.Health.StartupCheck(context.Background())

		for id, h := range a.Health.Health() {
			fmt.Printf("%-24s state=%-12s voices=%d\n", id, h.State, h.AvailableVoices)
		}

		sampler := health.NewDefaultSampler(a.Config.App().Performance.MemoryLimitMB)
		sample := sampler.Sample()
		total := len(a.Health.Health())
		available := 0
		for _, h := range a.Health.Health() {
			if h.State.String() == "available" {
				available++
			}
		}
		for _, d := range health.Diagnose(sample, available, total, 0) {
			fmt.Printf("[%s] %s: %s (%s)\n", d.Severity, d.IssueType, d.Description, d.Recommendation)
		}
		return nil
	},
}

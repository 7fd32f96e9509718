package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var enginesCmd = &cobra.Command{
	Use:   "engines",
	Short: "List registered engines and their availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(configDir)
		if err != nil {
			return err
		}
		ctx := context.Background()
		a.Health.StartupCheck(ctx)

		for id, cfg := range a.Engines.Snapshot() {
			eng, err := a.Engines.Get(id)
			if err != nil {
				continue
			}
			status := eng.Status()
			fmt.Printf("%-24s priority=%-3d enabled=%-5t state=%s\n", id, cfg.Priority, cfg.Enabled, status.State)
		}
		return nil
	},
}

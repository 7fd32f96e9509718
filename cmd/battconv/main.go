// Command battconv is the CLI entry point for the offline TTS batch
// converter: it wires the Config Registry, Engine Registry, Health
// Monitor and Scheduler together and exposes them through cobra
// subcommands, assembling a root command the same way any cobra-based
// CLI does (the scheduler and config registry are the only coupling
// points to the UI — this CLI is just another external caller of the
// scheduler's event API).
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set by the release pipeline; empty in dev builds.
	Version string

	configDir string
)

var rootCmd = &cobra.Command{
	Use:           "battconv",
	Short:         "Offline text-to-speech batch converter",
	Long:          "battconv synthesizes a queue of text documents to audio through one of several interchangeable TTS engines.",
	SilenceErrors: false,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the battconv version",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "configs", "root directory for persisted configuration")
	rootCmd.AddCommand(convertCmd, enginesCmd, configCmd, healthCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Error("battconv: command failed", "err", err)
		os.Exit(1)
	}
}

func printVersion() {
	v := Version
	if v == "" {
		v = "dev"
	}
	fmt.Println("battconv", v)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "deadlineplanner",
		Short:         "Personal task tracker with deadline reminders in Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to a YAML/TOML/JSON config file")

	rootCmd.AddCommand(newServeCommand(&configFile))
	rootCmd.AddCommand(newSweepCommand(&configFile))
	rootCmd.AddCommand(newVersionCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

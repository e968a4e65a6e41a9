package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "paybroker",
		Short:         "Payment session broker for NFC point-of-sale terminals",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file (env: PAYBROKER_CONFIG)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(allocateCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

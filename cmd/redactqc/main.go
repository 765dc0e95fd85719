package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "redactqc",
	Short: "RedactQC scans redacted PDFs for residual PII",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to config file")
	rootCmd.AddCommand(startCmd, workerCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

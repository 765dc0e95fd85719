package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the redactqc version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("redactqc version %s\n", version)
		return nil
	},
}

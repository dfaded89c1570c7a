package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"specpilot/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("specpilot version %s\n", version.Get())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"specpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		fmt.Printf("user config:    %s\n", config.GetUserConfigPath())
		if project := config.GetProjectConfigPath(); project != "" {
			fmt.Printf("project config: %s\n", project)
		}
		fmt.Println()
		fmt.Printf("backend.kind:       %s\n", cfg.Backend.Kind)
		fmt.Printf("backend.model:      %s\n", cfg.Backend.Model)
		fmt.Printf("backend.version:    %s\n", cfg.Backend.Version)
		if cfg.Backend.Kind == "cli" {
			fmt.Printf("backend.command:    %s\n", cfg.Backend.Command)
		}
		if cfg.Backend.UseBedrock {
			fmt.Printf("backend.aws_region: %s\n", cfg.Backend.AWSRegion)
		}
		fmt.Printf("pipeline.root:      %s\n", cfg.Pipeline.Root)
		fmt.Printf("pipeline.timeout:   %s\n", cfg.Pipeline.Timeout)
		fmt.Printf("pipeline.lock_ttl:  %s\n", cfg.Pipeline.LockTTL)
		fmt.Printf("packet.byte_budget: %d\n", cfg.Packet.ByteBudget)
		fmt.Printf("packet.line_budget: %d\n", cfg.Packet.LineBudget)

		apiKey := "not set"
		if cfg.Anthropic.APIKey != "" || os.Getenv("ANTHROPIC_API_KEY") != "" {
			apiKey = "set"
		}
		fmt.Printf("anthropic.api_key:  %s\n", apiKey)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

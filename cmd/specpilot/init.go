package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"specpilot/internal/config"
	"specpilot/internal/pin"
	"specpilot/internal/specdir"
)

var initRepin bool

var initCmd = &cobra.Command{
	Use:   "init <spec-id>",
	Short: "Initialize a spec and pin its environment",
	Long: `Create the on-disk layout for a spec and write its version pin.

The pin captures the configured model, backend version, and receipt
schema version. Later runs compare their environment against the pin
and report drift; --repin overwrites the pin with the current values.`,
	Args: cobra.ExactArgs(1),
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	specID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	layout := specdir.New(cfg.Pipeline.Root, specID)

	existing, err := pin.Load(layout.PinPath())
	if err != nil {
		return err
	}
	if existing != nil && !initRepin {
		return fmt.Errorf("spec %q already initialized (use --repin to overwrite the version pin)", specID)
	}

	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	p, err := pin.Save(layout.PinPath(), cfg.Backend.Model, cfg.Backend.Version)
	if err != nil {
		return err
	}

	color.Green("initialized spec %q", specID)
	fmt.Printf("  directory: %s\n", layout.Dir())
	fmt.Printf("  pinned:    model=%s backend=%s schema=%d\n", p.Model, p.BackendVersion, p.SchemaVersion)
	return nil
}

func init() {
	initCmd.Flags().BoolVar(&initRepin, "repin", false, "Overwrite an existing version pin with the current environment")
	rootCmd.AddCommand(initCmd)
}

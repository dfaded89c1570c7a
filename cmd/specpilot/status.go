package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"specpilot/internal/config"
	"specpilot/internal/lockfile"
	"specpilot/internal/phase"
	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
	"specpilot/internal/tui"
)

var statusWatch bool

var statusCmd = &cobra.Command{
	Use:   "status <spec-id>",
	Short: "Show derived pipeline state for a spec",
	Long: `Display the derived pipeline state for a spec.

State is re-derived from the receipt files on every invocation; status
is read-only and never takes the spec lock, so it is always safe while
a run is in flight. --watch keeps the view open and refreshes whenever
the receipts directory changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	specID := args[0]

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	layout := specdir.New(cfg.Pipeline.Root, specID)
	if !layout.Exists() {
		return fmt.Errorf("spec %q not initialized (run 'specpilot init %s' first)", specID, specID)
	}

	if statusWatch {
		model, err := tui.NewModel(layout)
		if err != nil {
			return err
		}
		_, err = tea.NewProgram(model).Run()
		return err
	}

	return printStatus(cfg, layout)
}

func printStatus(cfg *config.Config, layout *specdir.Layout) error {
	store := receipt.NewStore(layout.ReceiptsDir())
	graph := phase.NewGraph()

	completed, err := store.CompletedPhases()
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Phase", "State", "Attempts", "Last Attempt"})

	for _, p := range phase.All {
		receipts, err := store.ReadAll(p)
		if err != nil {
			return err
		}

		state := "pending"
		last := "-"
		if completed[p] {
			state = "ok"
		} else if len(receipts) > 0 {
			latest := receipts[len(receipts)-1]
			state = fmt.Sprintf("failed (%s, exit %d)", latest.ErrorClass, latest.ExitCode)
		} else if ok, _ := graph.Check(p, completed); ok {
			state = "runnable"
		}
		if len(receipts) > 0 {
			last = receipts[len(receipts)-1].EmittedAt.Local().Format(time.RFC3339)
		}

		t.AppendRow(table.Row{p.String(), state, len(receipts), last})
	}
	t.Render()

	if current, ok, err := store.CurrentPhase(); err != nil {
		return err
	} else if ok {
		fmt.Printf("\ncurrent phase: %s\n", current)
	} else {
		fmt.Println("\ncurrent phase: none (pipeline not started)")
	}

	next := graph.LegalNext(completed)
	if len(next) > 0 {
		fmt.Print("legal next: ")
		for i, p := range next {
			if i > 0 {
				fmt.Print(", ")
			}
			fmt.Print(p)
		}
		fmt.Println()
	}

	record, age, err := lockfile.NewManager().Inspect(layout.LockPath())
	if err != nil {
		return err
	}
	if record != nil {
		color.Yellow("locked by pid %d for %s", record.PID, age.Round(time.Second))
	}

	partials, err := layout.Partials()
	if err != nil {
		return err
	}
	for _, p := range partials {
		color.Yellow("partial artifact: %s (interrupted attempt; resume will clean it up)", p)
	}

	return nil
}

func init() {
	statusCmd.Flags().BoolVar(&statusWatch, "watch", false, "Keep the view open and refresh on receipt changes")
	rootCmd.AddCommand(statusCmd)
}

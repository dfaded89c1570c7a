package main

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"specpilot/internal/config"
	"specpilot/internal/history"
)

var (
	historySpec    string
	historyLimit   int
	historyRebuild bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past phase attempts across specs",
	Long: `List past phase attempts from the history index.

The index is a convenience cache over the receipt files and is never
used for orchestration decisions. --rebuild re-derives it from the
receipts of every spec.`,
	RunE: runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := history.Open(history.DefaultPath(cfg.Pipeline.Root))
	if err != nil {
		return err
	}
	defer db.Close()

	if historyRebuild {
		if err := db.Rebuild(cfg.Pipeline.Root); err != nil {
			return err
		}
		fmt.Println("history index rebuilt from receipts")
	}

	entries, err := db.List(historySpec, historyLimit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no attempts recorded")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"When", "Spec", "Phase", "Result", "Strategy", "Backend"})
	for _, e := range entries {
		result := "ok"
		if e.ExitCode != 0 {
			result = fmt.Sprintf("%s (exit %d)", e.ErrorClass, e.ExitCode)
		}
		t.AppendRow(table.Row{
			e.EmittedAt.Local().Format(time.RFC3339),
			e.SpecID,
			e.Phase,
			result,
			e.Strategy,
			e.Provider,
		})
	}
	t.Render()
	return nil
}

func init() {
	historyCmd.Flags().StringVar(&historySpec, "spec", "", "Limit to one spec")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum rows to show")
	historyCmd.Flags().BoolVar(&historyRebuild, "rebuild", false, "Re-derive the index from receipt files first")
	rootCmd.AddCommand(historyCmd)
}

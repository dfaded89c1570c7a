// Package tui provides the live status view for a spec. It is strictly
// read-only: state is re-derived from the receipt files on every
// refresh and the pipeline lock is never taken.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"

	"specpilot/internal/lockfile"
	"specpilot/internal/phase"
	"specpilot/internal/receipt"
	"specpilot/internal/specdir"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	lockStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).MarginTop(1)
)

// refreshMsg asks the model to re-derive state from disk.
type refreshMsg struct{}

// watchErrMsg carries a watcher failure.
type watchErrMsg struct{ err error }

// phaseRow is one line of derived state.
type phaseRow struct {
	phase     phase.ID
	attempts  int
	latest    *receipt.Receipt
	succeeded bool
	runnable  bool
}

// Model is the bubbletea model for the watch view.
type Model struct {
	layout  *specdir.Layout
	store   *receipt.Store
	graph   *phase.Graph
	locks   *lockfile.Manager
	watcher *fsnotify.Watcher

	spin     spinner.Model
	rows     []phaseRow
	lock     *lockfile.Record
	lockAge  time.Duration
	partials []string
	err      error
	quitting bool
}

// NewModel creates the watch model for one spec and starts its
// filesystem watcher on the receipts directory.
func NewModel(layout *specdir.Layout) (*Model, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(layout.ReceiptsDir()); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch receipts dir: %w", err)
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		layout:  layout,
		store:   receipt.NewStore(layout.ReceiptsDir()),
		graph:   phase.NewGraph(),
		locks:   lockfile.NewManager(),
		watcher: watcher,
		spin:    sp,
	}
	m.refresh()
	return m, nil
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.waitForChange())
}

// waitForChange blocks until the receipts directory changes.
func (m *Model) waitForChange() tea.Cmd {
	return func() tea.Msg {
		for {
			select {
			case event, ok := <-m.watcher.Events:
				if !ok {
					return watchErrMsg{err: fmt.Errorf("watcher closed")}
				}
				if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) != 0 {
					return refreshMsg{}
				}
			case err, ok := <-m.watcher.Errors:
				if !ok {
					return watchErrMsg{err: fmt.Errorf("watcher closed")}
				}
				return watchErrMsg{err: err}
			}
		}
	}
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			m.watcher.Close()
			return m, tea.Quit
		case "r":
			m.refresh()
			return m, nil
		}

	case refreshMsg:
		m.refresh()
		return m, m.waitForChange()

	case watchErrMsg:
		m.err = msg.err
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// refresh re-derives all displayed state from disk.
func (m *Model) refresh() {
	m.err = nil

	completed := make(map[phase.ID]bool)
	var rows []phaseRow
	for _, p := range phase.All {
		receipts, err := m.store.ReadAll(p)
		if err != nil {
			m.err = err
			return
		}
		row := phaseRow{phase: p, attempts: len(receipts)}
		if len(receipts) > 0 {
			row.latest = receipts[len(receipts)-1]
		}
		for _, r := range receipts {
			if r.Success() {
				row.succeeded = true
				completed[p] = true
				break
			}
		}
		rows = append(rows, row)
	}
	for i := range rows {
		if !completed[rows[i].phase] {
			ok, _ := m.graph.Check(rows[i].phase, completed)
			rows[i].runnable = ok
		}
	}
	m.rows = rows

	record, age, err := m.locks.Inspect(m.layout.LockPath())
	if err != nil {
		m.err = err
		return
	}
	m.lock = record
	m.lockAge = age

	partials, err := m.layout.Partials()
	if err != nil {
		m.err = err
		return
	}
	m.partials = partials
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	s := titleStyle.Render("spec: "+m.layout.SpecID) + "\n\n"

	for _, row := range m.rows {
		marker := pendingStyle.Render("·")
		detail := pendingStyle.Render("not attempted")

		if row.latest != nil {
			when := row.latest.EmittedAt.Local().Format("15:04:05")
			if row.succeeded {
				marker = successStyle.Render("✓")
				detail = successStyle.Render(fmt.Sprintf("ok (%d attempts, last %s)", row.attempts, when))
			} else {
				marker = failStyle.Render("✗")
				detail = failStyle.Render(fmt.Sprintf("%s exit %d (last %s)", row.latest.ErrorClass, row.latest.ExitCode, when))
			}
		} else if row.runnable {
			detail = "runnable"
		}

		s += fmt.Sprintf("  %s %-13s %s\n", marker, row.phase, detail)
	}

	if m.lock != nil {
		s += "\n" + m.spin.View() + lockStyle.Render(
			fmt.Sprintf(" locked by pid %d (%s)", m.lock.PID, m.lockAge.Round(time.Second)))
		s += "\n"
	}

	for _, p := range m.partials {
		s += lockStyle.Render("  partial: "+p) + "\n"
	}

	if m.err != nil {
		s += "\n" + failStyle.Render("error: "+m.err.Error()) + "\n"
	}

	s += helpStyle.Render("r refresh · q quit")
	return s
}

// Package tui provides interactive terminal UI components.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/forkguard/forkguard/internal/config"
	"github.com/forkguard/forkguard/internal/gitcmd"
	"github.com/forkguard/forkguard/internal/probe"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			MarginLeft(1)

	timestampStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginLeft(1).
			MarginTop(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			MarginLeft(1)

	countsStyle = lipgloss.NewStyle().
			Bold(true).
			MarginLeft(1).
			MarginBottom(1)
)

// maxHistory bounds the number of past checks kept in the table.
const maxHistory = 50

// Snapshot is one divergence check shown in the watch table.
type Snapshot struct {
	CheckedAt  time.Time
	Divergence probe.DivergenceStatus
}

// Checker produces a fresh divergence snapshot.
type Checker func(ctx context.Context) (Snapshot, error)

// DefaultChecker fetches the upstream remote and measures divergence against
// the configured upstream branch.
func DefaultChecker(git *gitcmd.Runner, cfg config.ProtectionConfig) Checker {
	p := probe.New(git, cfg)
	return func(ctx context.Context) (Snapshot, error) {
		if _, err := git.RunChecked(ctx, "fetch", "upstream"); err != nil {
			return Snapshot{}, fmt.Errorf("fetch upstream: %w", err)
		}
		status, err := p.MeasureDivergence(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		return Snapshot{CheckedAt: time.Now(), Divergence: status}, nil
	}
}

// Model represents the interactive watch TUI state.
type Model struct {
	table       table.Model
	checker     Checker
	upstreamRef string
	interval    time.Duration
	history     []Snapshot
	lastUpdate  time.Time
	nextCheck   time.Time
	err         error
	quitting    bool
}

type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg error

// tickCmd drives the once-per-second countdown redraw.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// New creates a new interactive watch TUI model.
func New(checker Checker, upstreamRef string, interval time.Duration) Model {
	columns := []table.Column{
		{Title: "Time", Width: 10},
		{Title: "Behind", Width: 8},
		{Title: "Ahead", Width: 8},
		{Title: "Risk", Width: 8},
		{Title: "Protected", Width: 10},
		{Title: "Upstream", Width: 14},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(20),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("12"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return Model{
		table:       t,
		checker:     checker,
		upstreamRef: upstreamRef,
		interval:    interval,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.check(),
	)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "r":
			// Manual refresh
			return m, m.check()
		}

	case tea.WindowSizeMsg:
		// Reserve space for header, counts, and footer
		m.table.SetHeight(msg.Height - 10)
		return m, nil

	case tickMsg:
		if !time.Time(msg).Before(m.nextCheck) {
			return m, tea.Batch(tickCmd(), m.check())
		}
		return m, tickCmd()

	case snapshotMsg:
		m.lastUpdate = time.Now()
		m.nextCheck = m.lastUpdate.Add(m.interval)
		m.err = nil
		m.history = append([]Snapshot{Snapshot(msg)}, m.history...)
		if len(m.history) > maxHistory {
			m.history = m.history[:maxHistory]
		}
		m.table.SetRows(historyRows(m.history))
		return m, nil

	case errMsg:
		m.err = msg
		m.nextCheck = time.Now().Add(m.interval)
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	var b strings.Builder

	title := titleStyle.Render("Forkguard Watch")
	timestamp := timestampStyle.Render(fmt.Sprintf("Last check: %s • next in %s",
		m.lastUpdate.Format("15:04:05"), m.countdown()))

	header := lipgloss.JoinHorizontal(
		lipgloss.Top,
		title,
		strings.Repeat(" ", 5),
		timestamp,
	)
	b.WriteString(header)
	b.WriteString("\n\n")

	counts := countsStyle.Render(m.summaryLine())
	b.WriteString(counts)
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	help := helpStyle.Render("↑/↓: navigate • r: refresh • q/esc: quit")
	b.WriteString(help)

	if m.err != nil {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	}

	return b.String()
}

// countdown formats the time remaining until the next scheduled check.
func (m Model) countdown() string {
	remaining := time.Until(m.nextCheck)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Sprintf("%ds", int(remaining.Round(time.Second).Seconds()))
}

// summaryLine condenses the latest snapshot into one header line.
func (m Model) summaryLine() string {
	if len(m.history) == 0 {
		return fmt.Sprintf("Upstream: %s | waiting for first check", m.upstreamRef)
	}
	latest := m.history[0].Divergence
	return fmt.Sprintf(
		"Upstream: %s | behind=%d ahead=%d risk=%s | checks: %d",
		m.upstreamRef, latest.Behind, latest.Ahead, latest.Risk, len(m.history),
	)
}

// historyRows converts snapshots to table rows, most recent first.
func historyRows(history []Snapshot) []table.Row {
	rows := make([]table.Row, len(history))
	for i, snap := range history {
		protected := "no"
		if snap.Divergence.ProtectedPathsTouched {
			protected = "yes"
		}
		rows[i] = table.Row{
			snap.CheckedAt.Format("15:04:05"),
			fmt.Sprintf("%d", snap.Divergence.Behind),
			fmt.Sprintf("%d", snap.Divergence.Ahead),
			string(snap.Divergence.Risk),
			protected,
			shortRef(snap.Divergence.UpstreamHead),
		}
	}
	return rows
}

// shortRef abbreviates a commit SHA for table display.
func shortRef(sha string) string {
	if len(sha) > 12 {
		return sha[:12]
	}
	return sha
}

func (m Model) check() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.checker(context.Background())
		if err != nil {
			return errMsg(err)
		}
		return snapshotMsg(snap)
	}
}

// Run starts the interactive watch TUI.
func Run(git *gitcmd.Runner, cfg config.ProtectionConfig, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := tea.NewProgram(
		New(DefaultChecker(git, cfg), cfg.UpstreamRef(), interval),
		tea.WithAltScreen(),
	)

	_, err := p.Run()
	return err
}

// Package tui is the terminal front end: a Bubble Tea model over a run state
// machine, a plain line-oriented renderer for non-interactive output, and
// loading of run requests from files.
package tui

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashita-ai/auditfront/internal/model"
	"github.com/ashita-ai/auditfront/internal/runstate"
)

// Machine is the part of the run state machine the terminal drives.
type Machine interface {
	Start(req model.RunRequest) error
	SkipToComplete(hint model.ResultKind) bool
	Reset()
	Subscribe() (<-chan struct{}, func())
	Snapshot() model.Snapshot
	Simulated() bool
}

var _ Machine = (*runstate.Machine)(nil)

type keyMap struct {
	Skip    key.Binding
	Reset   key.Binding
	Restart key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Skip, k.Reset, k.Restart, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

func defaultKeys() keyMap {
	return keyMap{
		Skip:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "skip to result")),
		Reset:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset")),
		Restart: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "run again")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// Options configures the live UI model.
type Options struct {
	NoColor bool
	// LogLines is how many trailing log lines are shown. Defaults to 12.
	LogLines int
}

// Model renders a run live using Bubble Tea.
type Model struct {
	machine  Machine
	req      model.RunRequest
	changes  <-chan struct{}
	snap     model.Snapshot
	keys     keyMap
	help     help.Model
	progress progress.Model
	spinner  spinner.Model
	opts     Options
	notice   string
	width    int
}

// NewModel constructs a live UI for machine. req is started by Init and by
// the restart key.
func NewModel(machine Machine, changes <-chan struct{}, req model.RunRequest, opts Options) Model {
	if opts.LogLines <= 0 {
		opts.LogLines = 12
	}
	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(48))
	if opts.NoColor {
		bar = progress.New(progress.WithSolidFill("7"), progress.WithWidth(48))
	}
	return Model{
		machine:  machine,
		req:      req,
		changes:  changes,
		snap:     machine.Snapshot(),
		keys:     defaultKeys(),
		help:     help.New(),
		progress: bar,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		opts:     opts,
	}
}

// Snapshot returns the last state the model rendered.
func (m Model) Snapshot() model.Snapshot {
	return m.snap
}

// changedMsg reports that the machine has a new snapshot.
type changedMsg struct{}

// startMsg asks the model to start the request.
type startMsg struct{}

// Init starts the run and begins listening for state changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return startMsg{} },
		waitForChange(m.changes),
		m.spinner.Tick,
	)
}

// Update consumes key presses, machine changes, and spinner ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.progress.Width = max(min(typed.Width-4, 80), 10)
		m.help.Width = typed.Width
		return m, nil
	case startMsg:
		m.start()
		return m, nil
	case changedMsg:
		m.snap = m.machine.Snapshot()
		return m, waitForChange(m.changes)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.notice = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.snap = m.machine.Snapshot()
		return m, tea.Quit
	case key.Matches(msg, m.keys.Skip):
		if !m.machine.SkipToComplete("") {
			m.notice = "nothing to skip"
		}
	case key.Matches(msg, m.keys.Reset):
		m.machine.Reset()
	case key.Matches(msg, m.keys.Restart):
		m.start()
	}
	return m, nil
}

func (m *Model) start() {
	if err := m.machine.Start(m.req); err != nil {
		m.notice = err.Error()
	}
}

// waitForChange blocks until the machine signals a change.
func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return tea.Quit()
		}
		return changedMsg{}
	}
}

// View renders the live UI.
func (m Model) View() string {
	sections := []string{renderHeader(m.snap, m.machine.Simulated(), m.opts.NoColor)}
	switch m.snap.State {
	case model.StateAnalyzing:
		sections = append(sections, m.spinner.View()+" "+renderProgress(m.progress, m.snap.Progress))
	case model.StateComplete:
		sections = append(sections, m.progress.ViewAs(1))
	}
	sections = append(sections, renderLogs(m.snap.Logs, m.opts.LogLines, m.opts.NoColor))
	if m.snap.Error != "" {
		sections = append(sections, stylize("Error: "+m.snap.Error, m.opts.NoColor, colorError))
	}
	if m.snap.Result != nil {
		sections = append(sections, renderResult(m.snap.Result, m.opts.NoColor))
	}
	if m.notice != "" {
		sections = append(sections, stylize(m.notice, m.opts.NoColor, colorMuted))
	}
	sections = append(sections, m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

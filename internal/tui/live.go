package tui

import (
	"context"
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ashita-ai/auditfront/internal/model"
)

// RunLive drives machine through the interactive UI until the user quits or
// ctx is cancelled, and returns the last snapshot shown.
func RunLive(ctx context.Context, machine Machine, req model.RunRequest, in io.Reader, out io.Writer, opts Options) (model.Snapshot, error) {
	changes, cancel := machine.Subscribe()
	defer cancel()

	m := NewModel(machine, changes, req, opts)
	program := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithAltScreen(),
	)
	final, err := program.Run()
	if err != nil {
		machine.Reset()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return machine.Snapshot(), ctx.Err()
		}
		return machine.Snapshot(), err
	}
	if fm, ok := final.(Model); ok {
		return fm.Snapshot(), nil
	}
	return machine.Snapshot(), nil
}

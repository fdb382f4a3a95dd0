package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"tasksync/internal/session"
)

// RunBoard runs the interactive board for s until the user quits.
func RunBoard(ctx context.Context, s *session.Session) error {
	applyColorProfilePreference()
	m := newBoardModel(ctx, s)
	defer m.close()
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

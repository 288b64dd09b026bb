package cli

import (
	"shelltree/internal/core/session"

	tea "github.com/charmbracelet/bubbletea"
)

func runUI(sess *session.Session) error {
	p := tea.NewProgram(initialModel(sess), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

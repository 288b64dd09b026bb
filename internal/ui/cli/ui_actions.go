package cli

import (
	"context"
	"fmt"
	"strings"

	"shelltree/internal/core/session"
	"shelltree/internal/shared/util"

	tea "github.com/charmbracelet/bubbletea"
)

func handleKeyActions(msg tea.KeyMsg, m model) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	case "enter":
		line := m.input.Value()
		m.input.Reset()
		if strings.HasPrefix(strings.TrimSpace(line), ":") {
			return runCommand(m, strings.TrimSpace(line))
		}
		if m.pending {
			m.errText = "previous fragment is still parsing"
			return m, nil
		}
		m.pending = true
		m.errText = ""
		return m, appendCmd(m.sess, line+"\n")
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func appendCmd(sess *session.Session, fragment string) tea.Cmd {
	return func() tea.Msg {
		res, err := sess.Append(context.Background(), fragment)
		return appendResultMsg{res: res, err: err}
	}
}

func runCommand(m model, line string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(strings.TrimPrefix(line, ":"))
	if len(fields) == 0 {
		return m, nil
	}
	m.errText = ""

	switch fields[0] {
	case "q", "quit":
		return m, tea.Quit
	case "changes":
		m.mode = viewChanges
	case "tree":
		m.mode = viewTree
	case "buffer":
		m.mode = viewBuffer
	case "reset":
		if m.pending {
			m.errText = "previous fragment is still parsing"
			return m, nil
		}
		if err := m.sess.Reset(); err != nil {
			m.errText = err.Error()
			return m, nil
		}
		m.last = nil
		m.status = "Session reset."
	case "save":
		if len(fields) != 2 {
			m.errText = "usage: :save PATH"
			return m, nil
		}
		if err := util.WriteFileWithDirs(fields[1], []byte(m.sess.BufferContents()), 0o644); err != nil {
			m.errText = err.Error()
			return m, nil
		}
		m.status = fmt.Sprintf("Saved %d bytes to %s.", m.sess.BufferSize(), fields[1])
	case "help":
		m.viewport.SetContent(replHelp)
		m.viewport.GotoTop()
		return m, nil
	default:
		m.errText = fmt.Sprintf("unknown command :%s (try :help)", fields[0])
		return m, nil
	}

	m.refresh()
	return m, nil
}

package cli

import (
	"fmt"
	"strings"

	"shelltree/internal/core/session"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	changeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type viewMode int

const (
	viewChanges viewMode = iota
	viewTree
	viewBuffer
)

func (v viewMode) String() string {
	switch v {
	case viewTree:
		return "tree"
	case viewBuffer:
		return "buffer"
	default:
		return "changes"
	}
}

type model struct {
	sess     *session.Session
	input    textinput.Model
	viewport viewport.Model
	mode     viewMode

	last    *session.Result
	pending bool
	status  string
	errText string
}

type appendResultMsg struct {
	res *session.Result
	err error
}

func initialModel(sess *session.Session) model {
	input := textinput.New()
	input.Placeholder = "type a line of shell, or :help"
	input.Prompt = "$ "
	input.CharLimit = 0
	input.Focus()

	vp := viewport.New(80, 20)

	m := model{
		sess:     sess,
		input:    input,
		viewport: vp,
		mode:     viewChanges,
		status:   "Each line is appended to the session followed by a newline.",
	}
	m.refresh()
	return m
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return handleKeyActions(msg, m)
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		width := msg.Width - h
		height := msg.Height - v - 6
		if height < 5 {
			height = 5
		}
		m.viewport.Width = width
		m.viewport.Height = height
		m.input.Width = width - len(m.input.Prompt) - 1
		m.refresh()
		return m, nil
	case appendResultMsg:
		m.pending = false
		if msg.err != nil {
			m.errText = msg.err.Error()
			return m, nil
		}
		m.errText = ""
		m.last = msg.res
		m.status = fmt.Sprintf("seq %d: %d changed node(s)", msg.res.Seq, len(msg.res.Changes.ChangedNodes))
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	header := titleStyle("Shell Tree REPL")

	var summary string
	switch {
	case m.sessionHasErrors():
		summary = errorStyle.Render("syntax errors")
	case m.last == nil:
		summary = statusStyle.Render("empty")
	default:
		summary = successStyle.Render("clean")
	}
	info := statusStyle.Render(fmt.Sprintf("session %s | %d bytes | view: %s",
		shortID(m.sess.ID()), m.sess.BufferSize(), m.mode))

	lines := []string{
		header,
		info + " | " + summary,
		"",
		m.viewport.View(),
		"",
		m.input.View(),
	}
	if m.errText != "" {
		lines = append(lines, errorStyle.Render(m.errText))
	} else {
		lines = append(lines, statusStyle.Render(m.status))
	}
	return docStyle.Render(strings.Join(lines, "\n"))
}

func (m model) sessionHasErrors() bool {
	if m.last != nil {
		return m.last.HasErrors
	}
	return m.sess.HasErrors()
}

// refresh re-renders the viewport for the current mode.
func (m *model) refresh() {
	var content string
	switch m.mode {
	case viewTree:
		content = renderTree(m.sess)
	case viewBuffer:
		content = renderBuffer(m.sess.BufferContents())
	default:
		content = renderChanges(m.last)
	}
	m.viewport.SetContent(content)
	if m.mode == viewBuffer {
		m.viewport.GotoBottom()
	} else {
		m.viewport.GotoTop()
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"shelltree/internal/core/session"

	tea "github.com/charmbracelet/bubbletea"
)

func newTestModel(t *testing.T) model {
	t.Helper()
	sess, err := session.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return initialModel(sess)
}

// submit types line and presses enter, running any append command.
func submit(t *testing.T, m model, line string) model {
	t.Helper()
	m.input.SetValue(line)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	state, ok := updated.(model)
	if !ok {
		t.Fatalf("expected model type, got %T", updated)
	}
	if cmd == nil {
		return state
	}
	msg := cmd()
	if _, ok := msg.(appendResultMsg); !ok {
		return state
	}
	updated, _ = state.Update(msg)
	return updated.(model)
}

func TestModel_AppendsLinesAndShowsChanges(t *testing.T) {
	m := newTestModel(t)

	m = submit(t, m, "echo 1")
	if m.last == nil || m.last.Seq != 1 {
		t.Fatalf("expected first result, got %+v", m.last)
	}
	m = submit(t, m, "echo 2")
	if m.pending {
		t.Fatal("expected pending to clear after result")
	}
	if got := m.sess.BufferContents(); got != "echo 1\necho 2\n" {
		t.Fatalf("unexpected buffer %q", got)
	}
	if len(m.last.Changes.ChangedNodes) != 1 || m.last.Changes.ChangedNodes[0].Text != "echo 2" {
		t.Fatalf("expected only echo 2 to change, got %+v", m.last.Changes.ChangedNodes)
	}
	if !strings.Contains(m.viewport.View(), "command") {
		t.Fatalf("expected changed command in view, got %q", m.viewport.View())
	}
	if m.input.Value() != "" {
		t.Fatal("expected input cleared after enter")
	}
}

func TestModel_CommandsSwitchViews(t *testing.T) {
	m := newTestModel(t)
	m = submit(t, m, "if true; then")

	m = submit(t, m, ":tree")
	if m.mode != viewTree {
		t.Fatalf("expected tree view, got %v", m.mode)
	}
	if !strings.Contains(m.View(), "syntax errors") {
		t.Fatal("expected syntax error badge for incomplete if")
	}

	m = submit(t, m, ":buffer")
	if m.mode != viewBuffer {
		t.Fatalf("expected buffer view, got %v", m.mode)
	}

	m = submit(t, m, ":reset")
	if m.sess.BufferSize() != 0 || m.last != nil {
		t.Fatal("expected reset to clear the session")
	}

	m = submit(t, m, ":bogus")
	if !strings.Contains(m.errText, "unknown command") {
		t.Fatalf("expected unknown command error, got %q", m.errText)
	}
}

func TestModel_SaveWritesBuffer(t *testing.T) {
	m := newTestModel(t)
	m = submit(t, m, "ls -la")

	path := filepath.Join(t.TempDir(), "nested", "out.sh")
	m = submit(t, m, ":save "+path)
	if m.errText != "" {
		t.Fatalf("unexpected error %q", m.errText)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "ls -la\n" {
		t.Fatalf("unexpected saved content %q", data)
	}

	m = submit(t, m, ":save")
	if m.errText == "" {
		t.Fatal("expected usage error without a path")
	}
}

func TestModel_QuitKeys(t *testing.T) {
	m := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg")
	}

	m.input.SetValue(":quit")
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("expected quit command from :quit")
	}
}

package cli

import (
	"fmt"
	"strings"

	"shelltree/internal/core/session"
	"shelltree/internal/engine/ast"
)

const replHelp = `Commands:
  :changes     show nodes changed by the last fragment
  :tree        show the whole tree
  :buffer      show the accumulated source
  :save PATH   write the accumulated source to PATH
  :reset       start over with an empty buffer
  :quit        leave (also ctrl+c or esc)
Scroll with pgup/pgdown.`

func renderChanges(res *session.Result) string {
	if res == nil {
		return statusStyle.Render("No fragments yet.")
	}
	if len(res.Changes.ChangedNodes) == 0 {
		return statusStyle.Render("No structural changes.")
	}

	var b strings.Builder
	if len(res.Changes.ChangedRanges) > 0 {
		b.WriteString(statusStyle.Render(fmt.Sprintf("%d changed range(s)", len(res.Changes.ChangedRanges))))
		b.WriteString("\n\n")
	}
	for i, n := range res.Changes.ChangedNodes {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(changeStyle.Render(fmt.Sprintf("%s at %d:%d", n.Type, n.Span.StartRow+1, n.Span.StartCol+1)))
		b.WriteString("\n")
		b.WriteString(ast.Outline(n))
	}
	return b.String()
}

func renderTree(sess *session.Session) string {
	root, err := sess.CurrentTree()
	if err != nil {
		return statusStyle.Render("No tree yet.")
	}
	return ast.Outline(root)
}

func renderBuffer(src string) string {
	if src == "" {
		return statusStyle.Render("Buffer is empty.")
	}
	lines := strings.Split(strings.TrimSuffix(src, "\n"), "\n")
	width := len(fmt.Sprint(len(lines)))
	var b strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&b, "%*d  %s\n", width, i+1, line)
	}
	return b.String()
}

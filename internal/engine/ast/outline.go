package ast

import (
	"fmt"
	"strconv"
	"strings"
)

const maxOutlineText = 40

// Outline renders n as an indented, one-node-per-line listing. Field
// children are prefixed with their field name; leaf text is quoted and
// truncated.
func Outline(n *Node) string {
	var b strings.Builder
	writeOutline(&b, n, "", 0)
	return b.String()
}

func writeOutline(b *strings.Builder, n *Node, field string, depth int) {
	if n == nil {
		return
	}
	b.WriteString(strings.Repeat("  ", depth))
	if field != "" {
		b.WriteString(field)
		b.WriteString(": ")
	}
	fmt.Fprintf(b, "%s [%d:%d-%d:%d]", n.Type, n.Span.StartRow, n.Span.StartCol, n.Span.EndRow, n.Span.EndCol)
	if marker := flagMarker(n.Flags); marker != "" {
		b.WriteString(" ")
		b.WriteString(marker)
	}
	if len(n.Fields) == 0 && len(n.Children) == 0 && n.Text != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(truncate(n.Text, maxOutlineText)))
	}
	b.WriteString("\n")

	fieldOf := make(map[*Node]string, len(n.Fields))
	for name, f := range n.Fields {
		for _, child := range f.Nodes() {
			fieldOf[child] = name
		}
	}
	for _, child := range n.NamedChildren() {
		writeOutline(b, child, fieldOf[child], depth+1)
	}
}

func flagMarker(f Flags) string {
	switch {
	case f.IsError:
		return "!error"
	case f.IsMissing:
		return "!missing"
	case f.HasError:
		return "!has-error"
	case f.IsExtra:
		return "~extra"
	}
	return ""
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}

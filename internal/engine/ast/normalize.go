package ast

import (
	"sort"
)

// Syntax is the view of a native parse-tree node the normalizer and change
// tracker work against. Implementations wrap a concrete grammar engine.
type Syntax interface {
	Kind() string
	IsNamed() bool
	IsMissing() bool
	IsExtra() bool
	IsError() bool
	HasError() bool
	StartByte() uint
	EndByte() uint
	StartPoint() Point
	EndPoint() Point
	// Children returns every direct child, anonymous tokens included, in
	// document order with the grammar field each one fills ("" for none).
	Children() []Child
	NamedChildCount() int
}

// Child pairs a child node with its field name.
type Child struct {
	Field string
	Node  Syntax
}

// Normalize converts a native node and its subtree into an attributed tree.
// It is pure and safe to call concurrently on disjoint trees.
func Normalize(n Syntax, source []byte) *Node {
	if n == nil {
		return nil
	}
	start, end := n.StartPoint(), n.EndPoint()
	out := &Node{
		Type:      n.Kind(),
		Span:      Span{StartRow: start.Row, StartCol: start.Column, EndRow: end.Row, EndCol: end.Column},
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		Text:      SliceText(source, n.StartByte(), n.EndByte()),
		Flags: Flags{
			IsMissing: n.IsMissing(),
			IsExtra:   n.IsExtra(),
			IsError:   n.IsError(),
			HasError:  n.HasError(),
		},
	}

	var (
		grouped map[string][]*Node
		order   []string
	)
	for _, child := range n.Children() {
		if child.Node == nil || !child.Node.IsNamed() {
			continue
		}
		converted := Normalize(child.Node, source)
		if child.Field == "" {
			out.Children = append(out.Children, converted)
			continue
		}
		if grouped == nil {
			grouped = make(map[string][]*Node)
		}
		if _, seen := grouped[child.Field]; !seen {
			order = append(order, child.Field)
		}
		grouped[child.Field] = append(grouped[child.Field], converted)
	}

	if len(order) > 0 {
		out.Fields = make(map[string]Field, len(order))
		for _, name := range order {
			values := grouped[name]
			if len(values) == 1 {
				out.Fields[name] = SingleField(values[0])
			} else {
				out.Fields[name] = RepeatedField(values)
			}
		}
	}
	return out
}

// NamedChildren returns the named direct children of n in document order.
func NamedChildren(n Syntax) []Syntax {
	if n == nil {
		return nil
	}
	var out []Syntax
	for _, child := range n.Children() {
		if child.Node != nil && child.Node.IsNamed() {
			out = append(out, child.Node)
		}
	}
	return out
}

// SliceText returns source[start:end], or "" when the range falls outside
// source. The bytes are kept as they are, valid UTF-8 or not.
func SliceText(source []byte, start, end uint) string {
	if start > end || end > uint(len(source)) {
		return ""
	}
	return string(source[start:end])
}

func sortedFieldNames(fields map[string]Field) []string {
	if len(fields) == 0 {
		return nil
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

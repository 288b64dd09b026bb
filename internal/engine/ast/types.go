// Package ast holds the grammar-agnostic attributed tree produced by every parse.
package ast

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Point is a zero-based (row, column) position. Columns count bytes.
type Point struct {
	Row    uint
	Column uint
}

// Span is the row/column extent of a node.
type Span struct {
	StartRow uint
	StartCol uint
	EndRow   uint
	EndCol   uint
}

// Flags surfaces the error-recovery markers of a native node.
type Flags struct {
	IsMissing bool
	IsExtra   bool
	IsError   bool
	HasError  bool
}

// Node is an immutable attributed tree node. Nodes are rebuilt on every
// parse and carry no reference back to the tree they came from.
type Node struct {
	Type      string
	Span      Span
	StartByte uint
	EndByte   uint
	Text      string
	Flags     Flags
	Fields    map[string]Field
	Children  []*Node
}

// Field is the value of a grammar field: a single node when the field occurs
// once under its parent, an ordered sequence when it repeats.
type Field struct {
	node  *Node
	nodes []*Node
}

// SingleField wraps one node.
func SingleField(n *Node) Field { return Field{node: n} }

// RepeatedField wraps two or more nodes in document order.
func RepeatedField(nodes []*Node) Field { return Field{nodes: nodes} }

// IsRepeated reports whether the field holds a sequence.
func (f Field) IsRepeated() bool { return f.nodes != nil }

// Node returns the single node, or nil for repeated fields.
func (f Field) Node() *Node { return f.node }

// Nodes returns every node of the field in order, whatever its shape.
func (f Field) Nodes() []*Node {
	if f.nodes != nil {
		return f.nodes
	}
	if f.node != nil {
		return []*Node{f.node}
	}
	return nil
}

func (f Field) MarshalJSON() ([]byte, error) {
	if f.nodes != nil {
		return json.Marshal(f.nodes)
	}
	return json.Marshal(f.node)
}

func (f *Field) UnmarshalJSON(data []byte) error {
	var probe json.RawMessage = data
	if len(probe) > 0 && probe[0] == '[' {
		var nodes []*Node
		if err := json.Unmarshal(data, &nodes); err != nil {
			return err
		}
		*f = RepeatedField(nodes)
		return nil
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = SingleField(&n)
	return nil
}

// Field returns the named field and whether it is present.
func (n *Node) Field(name string) (Field, bool) {
	if n == nil || n.Fields == nil {
		return Field{}, false
	}
	f, ok := n.Fields[name]
	return f, ok
}

// Walk visits n and its descendants depth-first in document order.
// Returning false from fn skips the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, child := range n.NamedChildren() {
		child.Walk(fn)
	}
}

// NamedChildren merges field and fieldless children back into document order.
func (n *Node) NamedChildren() []*Node {
	if n == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.Children)+len(n.Fields))
	for _, name := range sortedFieldNames(n.Fields) {
		out = append(out, n.Fields[name].Nodes()...)
	}
	out = append(out, n.Children...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartByte < out[j].StartByte })
	return out
}

// AnyError reports whether n or any descendant is an error node or carries
// the has-error flag.
func (n *Node) AnyError() bool {
	found := false
	n.Walk(func(c *Node) bool {
		if c.Flags.IsError || c.Flags.HasError {
			found = true
		}
		return !found
	})
	return found
}

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s[%d:%d-%d:%d]", n.Type, n.Span.StartRow, n.Span.StartCol, n.Span.EndRow, n.Span.EndCol)
}

type nodeJSON struct {
	Type      string           `json:"type"`
	StartRow  uint             `json:"start_row"`
	StartCol  uint             `json:"start_col"`
	EndRow    uint             `json:"end_row"`
	EndCol    uint             `json:"end_col"`
	StartByte uint             `json:"start_byte"`
	EndByte   uint             `json:"end_byte"`
	Text      string           `json:"text"`
	IsMissing bool             `json:"is_missing"`
	IsExtra   bool             `json:"is_extra"`
	IsError   bool             `json:"is_error"`
	HasError  bool             `json:"has_error"`
	Fields    map[string]Field `json:"fields,omitempty"`
	Children  []*Node          `json:"children,omitempty"`
}

func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{
		Type:      n.Type,
		StartRow:  n.Span.StartRow,
		StartCol:  n.Span.StartCol,
		EndRow:    n.Span.EndRow,
		EndCol:    n.Span.EndCol,
		StartByte: n.StartByte,
		EndByte:   n.EndByte,
		Text:      n.Text,
		IsMissing: n.Flags.IsMissing,
		IsExtra:   n.Flags.IsExtra,
		IsError:   n.Flags.IsError,
		HasError:  n.Flags.HasError,
		Fields:    n.Fields,
		Children:  n.Children,
	})
}

func (n *Node) UnmarshalJSON(data []byte) error {
	var raw nodeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*n = Node{
		Type:      raw.Type,
		Span:      Span{StartRow: raw.StartRow, StartCol: raw.StartCol, EndRow: raw.EndRow, EndCol: raw.EndCol},
		StartByte: raw.StartByte,
		EndByte:   raw.EndByte,
		Text:      raw.Text,
		Flags:     Flags{IsMissing: raw.IsMissing, IsExtra: raw.IsExtra, IsError: raw.IsError, HasError: raw.HasError},
		Fields:    raw.Fields,
		Children:  raw.Children,
	}
	return nil
}

// ChangedRange is a region reported as structurally different between two
// consecutive trees.
type ChangedRange struct {
	StartByte uint `json:"start_byte"`
	EndByte   uint `json:"end_byte"`
	StartRow  uint `json:"start_row"`
	StartCol  uint `json:"start_col"`
	EndRow    uint `json:"end_row"`
	EndCol    uint `json:"end_col"`
}

// ChangeReport describes what changed after one reparse.
type ChangeReport struct {
	ChangedRanges []ChangedRange `json:"changed_ranges"`
	ChangedNodes  []*Node        `json:"changed_nodes"`
}

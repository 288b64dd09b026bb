// Package asttest provides in-memory ast.Syntax trees for tests.
package asttest

import "shelltree/internal/engine/ast"

// Node is a hand-built syntax node.
type Node struct {
	Type    string
	Named   bool
	Missing bool
	Extra   bool
	Error   bool
	HasErr  bool
	Start   uint
	End     uint
	StartPt ast.Point
	EndPt   ast.Point
	Kids    []ast.Child
}

var _ ast.Syntax = (*Node)(nil)

func (n *Node) Kind() string          { return n.Type }
func (n *Node) IsNamed() bool         { return n.Named }
func (n *Node) IsMissing() bool       { return n.Missing }
func (n *Node) IsExtra() bool         { return n.Extra }
func (n *Node) IsError() bool         { return n.Error }
func (n *Node) HasError() bool        { return n.HasErr || n.Error || n.Missing }
func (n *Node) StartByte() uint       { return n.Start }
func (n *Node) EndByte() uint         { return n.End }
func (n *Node) StartPoint() ast.Point { return n.StartPt }
func (n *Node) EndPoint() ast.Point   { return n.EndPt }
func (n *Node) Children() []ast.Child { return n.Kids }

func (n *Node) NamedChildCount() int {
	count := 0
	for _, k := range n.Kids {
		if k.Node.IsNamed() {
			count++
		}
	}
	return count
}

// Named builds a named node over [start, end).
func Named(kind string, start, end uint, kids ...ast.Child) *Node {
	return &Node{Type: kind, Named: true, Start: start, End: end, Kids: kids}
}

// Anon builds an anonymous token over [start, end).
func Anon(kind string, start, end uint) *Node {
	return &Node{Type: kind, Start: start, End: end}
}

// C attaches a child without a field.
func C(n *Node) ast.Child { return ast.Child{Node: n} }

// F attaches a child under a field name.
func F(field string, n *Node) ast.Child { return ast.Child{Field: field, Node: n} }

// Layout fills row/column points of n and its subtree from byte offsets
// into src, and propagates HasErr upwards. It returns n for chaining.
func Layout(src string, n *Node) *Node {
	n.StartPt = pointAt(src, n.Start)
	n.EndPt = pointAt(src, n.End)
	for _, k := range n.Kids {
		child := k.Node.(*Node)
		Layout(src, child)
		if child.HasError() {
			n.HasErr = true
		}
	}
	return n
}

func pointAt(src string, offset uint) ast.Point {
	var p ast.Point
	for i := uint(0); i < offset && i < uint(len(src)); i++ {
		if src[i] == '\n' {
			p.Row++
			p.Column = 0
			continue
		}
		p.Column++
	}
	return p
}

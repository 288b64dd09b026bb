package parser

import (
	"shelltree/internal/engine/ast"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// syntaxNode exposes a tree-sitter node through ast.Syntax. It is only valid
// while the tree it came from is open.
type syntaxNode struct {
	n *sitter.Node
}

// Syntax wraps n for the normalizer and change resolution.
func Syntax(n *sitter.Node) ast.Syntax {
	if n == nil {
		return nil
	}
	return syntaxNode{n: n}
}

func (s syntaxNode) Kind() string { return s.n.Kind() }
func (s syntaxNode) IsNamed() bool { return s.n.IsNamed() }
func (s syntaxNode) IsMissing() bool { return s.n.IsMissing() }
func (s syntaxNode) IsExtra() bool { return s.n.IsExtra() }
func (s syntaxNode) IsError() bool { return s.n.IsError() }
func (s syntaxNode) HasError() bool { return s.n.HasError() }
func (s syntaxNode) StartByte() uint { return s.n.StartByte() }
func (s syntaxNode) EndByte() uint { return s.n.EndByte() }
func (s syntaxNode) NamedChildCount() int { return int(s.n.NamedChildCount()) }

func (s syntaxNode) StartPoint() ast.Point { return point(s.n.StartPosition()) }
func (s syntaxNode) EndPoint() ast.Point { return point(s.n.EndPosition()) }

// Children walks the direct children with a cursor so field names come
// along with each node.
func (s syntaxNode) Children() []ast.Child {
	if s.n.ChildCount() == 0 {
		return nil
	}
	cursor := s.n.Walk()
	defer cursor.Close()

	out := make([]ast.Child, 0, s.n.ChildCount())
	if !cursor.GotoFirstChild() {
		return nil
	}
	for {
		out = append(out, ast.Child{
			Field: cursor.FieldName(),
			Node:  syntaxNode{n: cursor.Node()},
		})
		if !cursor.GotoNextSibling() {
			break
		}
	}
	return out
}

func point(p sitter.Point) ast.Point {
	return ast.Point{Row: p.Row, Column: p.Column}
}

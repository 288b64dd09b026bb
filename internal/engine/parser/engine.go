package parser

import (
	"shelltree/internal/core/errors"
	"shelltree/internal/engine/ast"
	"shelltree/internal/engine/buffer"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// treeParser is the slice of *sitter.Parser the engine drives.
type treeParser interface {
	Parse(source []byte, oldTree *sitter.Tree) *sitter.Tree
	Close()
}

// Engine owns one parser and the most recent tree it produced. Reparses
// hand the previous tree, edited by the accumulator's edit, back to the
// parser so unchanged subtrees are reused.
//
// An Engine is not safe for concurrent use; sessions serialize access.
type Engine struct {
	parser treeParser
	tree   *sitter.Tree
}

// NewEngine configures a parser for lang.
func NewEngine(lang *sitter.Language) (*Engine, error) {
	if lang == nil {
		return nil, errors.New(errors.CodeInitError, "nil grammar")
	}
	p := sitter.NewParser()
	if err := p.SetLanguage(lang); err != nil {
		p.Close()
		return nil, errors.Wrap(err, errors.CodeInitError, "grammar rejected by parser runtime")
	}
	return &Engine{parser: p}, nil
}

// Reparse parses source, the full buffer after edit was applied.
//
// The stored tree is left untouched until the parser succeeds: the edit is
// applied to a clone, so a failed parse leaves the engine exactly as it
// was. On success the returned Reparse carries the edited previous tree for
// change tracking; callers must Release it.
func (e *Engine) Reparse(edit buffer.Edit, source []byte) (*Reparse, error) {
	var previous *sitter.Tree
	if e.tree != nil {
		previous = e.tree.Clone()
		previous.Edit(inputEdit(edit))
	}

	next := e.parser.Parse(source, previous)
	if next == nil {
		if previous != nil {
			previous.Close()
		}
		return nil, errors.New(errors.CodeParseFailure, "parser produced no tree")
	}

	if e.tree != nil {
		e.tree.Close()
	}
	e.tree = next
	return &Reparse{tree: next, previous: previous}, nil
}

// Root returns the current root, or nil before the first successful parse.
func (e *Engine) Root() ast.Syntax {
	if e.tree == nil {
		return nil
	}
	return Syntax(e.tree.RootNode())
}

// HasTree reports whether a parse has succeeded since the last reset.
func (e *Engine) HasTree() bool { return e.tree != nil }

// HasError reports whether the current tree contains error or missing
// nodes. It is false when there is no tree.
func (e *Engine) HasError() bool {
	if e.tree == nil {
		return false
	}
	return e.tree.RootNode().HasError()
}

// Reset drops the current tree so the next parse starts from scratch.
func (e *Engine) Reset() {
	if e.tree != nil {
		e.tree.Close()
		e.tree = nil
	}
}

// Close releases the tree and the parser.
func (e *Engine) Close() {
	e.Reset()
	if e.parser != nil {
		e.parser.Close()
		e.parser = nil
	}
}

// Reparse is the outcome of one successful Engine.Reparse.
type Reparse struct {
	tree     *sitter.Tree
	previous *sitter.Tree
}

// First reports whether there was no previous tree.
func (r *Reparse) First() bool { return r.previous == nil }

// Root is the new tree's root. It stays valid until the engine parses
// again or is reset.
func (r *Reparse) Root() ast.Syntax { return Syntax(r.tree.RootNode()) }

// PreviousNamedCount is the named-child count of the previous root.
func (r *Reparse) PreviousNamedCount() int {
	if r.previous == nil {
		return 0
	}
	return int(r.previous.RootNode().NamedChildCount())
}

// ChangedRanges asks the runtime which byte regions differ structurally
// between the edited previous tree and the new one.
func (r *Reparse) ChangedRanges() []ast.ChangedRange {
	if r.previous == nil {
		return nil
	}
	native := r.previous.ChangedRanges(r.tree)
	out := make([]ast.ChangedRange, 0, len(native))
	for _, rg := range native {
		out = append(out, ast.ChangedRange{
			StartByte: rg.StartByte,
			EndByte:   rg.EndByte,
			StartRow:  rg.StartPoint.Row,
			StartCol:  rg.StartPoint.Column,
			EndRow:    rg.EndPoint.Row,
			EndCol:    rg.EndPoint.Column,
		})
	}
	return out
}

// Release frees the edited previous tree.
func (r *Reparse) Release() {
	if r.previous != nil {
		r.previous.Close()
		r.previous = nil
	}
}

func inputEdit(e buffer.Edit) *sitter.InputEdit {
	return &sitter.InputEdit{
		StartByte:      e.StartByte,
		OldEndByte:     e.OldEndByte,
		NewEndByte:     e.NewEndByte,
		StartPosition:  sitter.Point{Row: e.StartPosition.Row, Column: e.StartPosition.Column},
		OldEndPosition: sitter.Point{Row: e.OldEndPosition.Row, Column: e.OldEndPosition.Column},
		NewEndPosition: sitter.Point{Row: e.NewEndPosition.Row, Column: e.NewEndPosition.Column},
	}
}

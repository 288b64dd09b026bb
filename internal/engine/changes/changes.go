// Package changes resolves the difference between two consecutive parse
// trees into the set of nodes a caller should treat as changed.
package changes

import (
	"fmt"
	"strings"

	"shelltree/internal/engine/ast"
)

// FirstParsePolicy decides what a first parse reports as changed nodes.
type FirstParsePolicy string

const (
	// FirstParseAll reports every top-level named node.
	FirstParseAll FirstParsePolicy = "all"
	// FirstParseNone reports no changed nodes.
	FirstParseNone FirstParsePolicy = "none"
)

// ParseFirstParsePolicy validates a configured policy name.
func ParseFirstParsePolicy(raw string) (FirstParsePolicy, error) {
	switch FirstParsePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FirstParseAll:
		return FirstParseAll, nil
	case FirstParseNone:
		return FirstParseNone, nil
	}
	return "", fmt.Errorf("unknown first-parse policy %q (want %q or %q)", raw, FirstParseAll, FirstParseNone)
}

// RootRangePolicy decides what a changed range resolves to when the only
// named node containing it is the root.
type RootRangePolicy string

const (
	// RootRangeRoot reports the root itself.
	RootRangeRoot RootRangePolicy = "root"
	// RootRangeStatements reports the top-level named nodes the range
	// overlaps instead of the root.
	RootRangeStatements RootRangePolicy = "statements"
)

// ParseRootRangePolicy validates a configured policy name.
func ParseRootRangePolicy(raw string) (RootRangePolicy, error) {
	switch RootRangePolicy(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RootRangeRoot:
		return RootRangeRoot, nil
	case RootRangeStatements:
		return RootRangeStatements, nil
	}
	return "", fmt.Errorf("unknown root-range policy %q (want %q or %q)", raw, RootRangeRoot, RootRangeStatements)
}

// Policy groups the reporting choices of a session.
type Policy struct {
	FirstParse FirstParsePolicy
	RootRange  RootRangePolicy
}

// DefaultPolicy reports all top-level nodes on a first parse and the root
// for ranges only it contains.
func DefaultPolicy() Policy {
	return Policy{FirstParse: FirstParseAll, RootRange: RootRangeRoot}
}

// First builds the report of a parse with no predecessor.
func First(root ast.Syntax, source []byte, policy FirstParsePolicy) ast.ChangeReport {
	report := ast.ChangeReport{
		ChangedRanges: []ast.ChangedRange{},
		ChangedNodes:  []*ast.Node{},
	}
	if policy == FirstParseNone {
		return report
	}
	for _, child := range ast.NamedChildren(root) {
		report.ChangedNodes = append(report.ChangedNodes, ast.Normalize(child, source))
	}
	return report
}

// Diff builds the report for a reparse. ranges are the native changed
// ranges between the edited previous tree and the new tree; oldNamed is the
// previous root's named-child count.
func Diff(ranges []ast.ChangedRange, oldNamed int, newRoot ast.Syntax, source []byte, rootRange RootRangePolicy) ast.ChangeReport {
	report := ast.ChangeReport{
		ChangedRanges: append([]ast.ChangedRange{}, ranges...),
		ChangedNodes:  []*ast.Node{},
	}
	for _, n := range Resolve(ranges, oldNamed, newRoot, rootRange) {
		report.ChangedNodes = append(report.ChangedNodes, ast.Normalize(n, source))
	}
	return report
}

// Resolve maps changed ranges to nodes of newRoot.
//
// With ranges, each one resolves to the smallest named node containing it,
// duplicates by byte extent dropped; rootRange decides what happens when
// that node is the root. Without ranges, top-level named nodes beyond
// oldNamed are new. Otherwise nothing changed shape.
func Resolve(ranges []ast.ChangedRange, oldNamed int, newRoot ast.Syntax, rootRange RootRangePolicy) []ast.Syntax {
	if newRoot == nil {
		return nil
	}
	if len(ranges) > 0 {
		return resolveRanges(ranges, newRoot, rootRange)
	}
	if newRoot.NamedChildCount() > oldNamed {
		named := ast.NamedChildren(newRoot)
		return append([]ast.Syntax(nil), named[oldNamed:]...)
	}
	return nil
}

type extent struct{ start, end uint }

func resolveRanges(ranges []ast.ChangedRange, root ast.Syntax, rootRange RootRangePolicy) []ast.Syntax {
	var (
		out  []ast.Syntax
		seen = make(map[extent]bool)
	)
	add := func(n ast.Syntax) {
		key := extent{n.StartByte(), n.EndByte()}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, n)
	}

	for _, r := range ranges {
		node := SmallestContaining(root, r)
		if node == nil {
			continue
		}
		if rootRange != RootRangeStatements || !sameExtent(node, root) {
			add(node)
			continue
		}
		for _, child := range overlapping(root, r) {
			add(child)
		}
	}
	return out
}

// SmallestContaining returns the deepest named node under n whose byte span
// contains r, preferring the first match in document order. It returns nil
// when n does not contain r or no named node does.
func SmallestContaining(n ast.Syntax, r ast.ChangedRange) ast.Syntax {
	if n == nil || !contains(n, r) {
		return nil
	}
	for _, child := range n.Children() {
		if child.Node == nil || !contains(child.Node, r) {
			continue
		}
		if found := SmallestContaining(child.Node, r); found != nil {
			return found
		}
	}
	if n.IsNamed() {
		return n
	}
	return nil
}

func contains(n ast.Syntax, r ast.ChangedRange) bool {
	return n.StartByte() <= r.StartByte && n.EndByte() >= r.EndByte
}

func sameExtent(a, b ast.Syntax) bool {
	return a.StartByte() == b.StartByte() && a.EndByte() == b.EndByte()
}

func overlapping(root ast.Syntax, r ast.ChangedRange) []ast.Syntax {
	var out []ast.Syntax
	for _, child := range ast.NamedChildren(root) {
		if r.StartByte == r.EndByte {
			if contains(child, r) {
				out = append(out, child)
			}
			continue
		}
		if child.StartByte() < r.EndByte && child.EndByte() > r.StartByte {
			out = append(out, child)
		}
	}
	return out
}

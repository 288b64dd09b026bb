package parser

import (
	"shelltree/internal/engine/ast"
	"shelltree/internal/engine/changes"
)

// TrackChanges builds the change report for a reparse of source.
func TrackChanges(r *Reparse, source []byte, policy changes.Policy) ast.ChangeReport {
	if r.First() {
		return changes.First(r.Root(), source, policy.FirstParse)
	}
	return changes.Diff(r.ChangedRanges(), r.PreviousNamedCount(), r.Root(), source, policy.RootRange)
}

// Package cascade closes the duplicates of an issue when it is closed.
package cascade

import (
	"sort"

	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Close sets closedStatusID on every issue that transitively duplicates
// rootID and is not already closed, and returns those issues sorted by ID.
//
// Only "A duplicates root" edges pointing into the root are followed, so
// closing a duplicate never closes the issue it duplicates. An already closed
// duplicate is left alone and not descended into. The root is never touched,
// even when a forced cycle of duplicates leads back to it. issues holds
// working copies keyed by ID; duplicates missing from it are skipped.
func Close(issues map[int]*model.Issue, g *graph.Graph, rootID, closedStatusID int, isClosed func(*model.Issue) bool) []*model.Issue {
	var closed []*model.Issue

	g.Walk(rootID, model.RelationDuplicatedBy, func(id int) bool {
		dup, ok := issues[id]
		if !ok || isClosed(dup) {
			return false
		}
		dup.StatusID = closedStatusID
		closed = append(closed, dup)
		return true
	})

	sort.Slice(closed, func(i, j int) bool { return closed[i].ID < closed[j].ID })
	return closed
}

// Package scheduler pushes the dates of following issues forward when the
// issue they follow ends later than they start.
package scheduler

import (
	"sort"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Reschedule propagates the dates of rootID to every issue reachable from it
// along precedes edges. issues holds working copies keyed by ID and must
// include the reachable issues and their predecessors; predecessors missing
// from it are ignored. Issues are mutated in place and the changed ones are
// returned sorted by ID. The root is never modified.
//
// Successors are settled in topological order of the reachable subgraph, so
// an issue is only moved after all its predecessors are final. Issues caught
// in a forced cycle are settled afterwards in breadth-first order from the
// root, considering only predecessors settled before them. Every issue is
// visited at most once.
func Reschedule(issues map[int]*model.Issue, g *graph.Graph, rootID int) []*model.Issue {
	reachable := make(map[int]bool)
	for _, id := range g.Closure(rootID, model.RelationPrecedes) {
		reachable[id] = true
	}
	if len(reachable) == 0 {
		return nil
	}

	inDegree := make(map[int]int, len(reachable))
	for id := range reachable {
		for _, pred := range g.Neighbors(id, model.RelationFollows) {
			if pred == rootID || reachable[pred] {
				inDegree[id]++
			}
		}
	}

	settled := map[int]bool{rootID: true}
	changed := make(map[int]*model.Issue)

	settle := func(id int) {
		settled[id] = true
		issue, ok := issues[id]
		if !ok {
			return
		}
		required, ok := requiredStart(issues, g, id, settled)
		if !ok {
			return
		}
		if issue.StartDate == nil || issue.StartDate.Before(required) {
			shift(issue, required)
			changed[id] = issue
		}
	}

	queue := []int{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range g.Neighbors(id, model.RelationPrecedes) {
			if !reachable[succ] || settled[succ] {
				continue
			}
			inDegree[succ]--
			if inDegree[succ] == 0 {
				settle(succ)
				queue = append(queue, succ)
			}
		}
	}

	if len(settled) <= len(reachable) {
		for _, id := range bfsOrder(g, rootID) {
			if !settled[id] {
				settle(id)
			}
		}
	}

	out := make([]*model.Issue, 0, len(changed))
	for _, issue := range changed {
		out = append(out, issue)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// requiredStart returns the earliest start allowed by the settled
// predecessors of id: one day after the latest of their due dates, falling
// back to start dates for predecessors without a due date.
func requiredStart(issues map[int]*model.Issue, g *graph.Graph, id int, settled map[int]bool) (time.Time, bool) {
	var required time.Time
	found := false
	for _, predID := range g.Neighbors(id, model.RelationFollows) {
		if !settled[predID] || predID == id {
			continue
		}
		pred, ok := issues[predID]
		if !ok {
			continue
		}
		end := pred.DueDate
		if end == nil {
			end = pred.StartDate
		}
		if end == nil {
			continue
		}
		candidate := model.AddDays(*end, 1)
		if !found || candidate.After(required) {
			required = candidate
			found = true
		}
	}
	return required, found
}

// shift moves issue to start on date and keeps its duration. An issue
// without both dates has a duration of zero and ends on its new start.
func shift(issue *model.Issue, date time.Time) {
	duration := 0
	if issue.StartDate != nil && issue.DueDate != nil {
		duration = model.DaysBetween(*issue.StartDate, *issue.DueDate)
	}
	start := model.DateOnly(date)
	due := model.AddDays(start, duration)
	issue.StartDate = &start
	issue.DueDate = &due
}

func bfsOrder(g *graph.Graph, rootID int) []int {
	var order []int
	seen := map[int]bool{rootID: true}
	queue := []int{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, succ := range g.Neighbors(id, model.RelationPrecedes) {
			if !seen[succ] {
				seen[succ] = true
				order = append(order, succ)
				queue = append(queue, succ)
			}
		}
	}
	return order
}

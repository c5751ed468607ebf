package graph

import (
	"sort"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Adjacency returns forward and backward adjacency lists over stored edges
// of kind. forward[A] lists the issues A points at; backward[A] lists the
// issues pointing at A.
func (g *Graph) Adjacency(kind model.RelationKind) (forward, backward map[int][]int) {
	forward = make(map[int][]int)
	backward = make(map[int][]int)
	stored := kind.Stored()
	for _, e := range g.edges {
		if e.Kind != stored {
			continue
		}
		forward[e.FromID] = append(forward[e.FromID], e.ToID)
		backward[e.ToID] = append(backward[e.ToID], e.FromID)
	}
	return forward, backward
}

// Levels groups every issue touched by a kind edge into topological levels
// using Kahn's algorithm: level 0 holds issues nothing points at, level 1
// those whose predecessors all sit in level 0, and so on.
//
// Returns a *CycleError listing the issues left inside cycles when the
// subgraph is not acyclic.
func (g *Graph) Levels(kind model.RelationKind) ([][]int, error) {
	forward, backward := g.Adjacency(kind)

	inDegree := make(map[int]int)
	for id, preds := range backward {
		inDegree[id] = len(preds)
	}
	for id := range forward {
		if _, ok := inDegree[id]; !ok {
			inDegree[id] = 0
		}
	}

	var queue []int
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Ints(queue)

	var levels [][]int
	processed := 0

	for len(queue) > 0 {
		levels = append(levels, queue)
		processed += len(queue)

		var next []int
		for _, id := range queue {
			for _, succ := range forward[id] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		sort.Ints(next)
		queue = next
	}

	if processed != len(inDegree) {
		var cycleIDs []int
		for id, deg := range inDegree {
			if deg > 0 {
				cycleIDs = append(cycleIDs, id)
			}
		}
		sort.Ints(cycleIDs)
		return levels, &CycleError{Kind: kind.Stored(), Path: cycleIDs, Among: true}
	}

	return levels, nil
}

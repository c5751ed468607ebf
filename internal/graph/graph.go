// Package graph holds an in-memory view of typed issue relations and the
// traversals the engine runs over it.
//
// The graph is a plain directed multigraph. Cycles are a legal data state
// (a relation can be forced past the cycle check), so every traversal keeps
// a visited set and terminates after touching each issue at most once.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Sentinel errors for relation insertion.
var (
	ErrSelfRelation      = errors.New("self-referential relation")
	ErrDuplicateRelation = errors.New("duplicate relation")
)

// CycleError wraps model.ErrCyclicRelation. For a rejected insertion Path is
// the chain of issue IDs the new relation would close; for Levels it lists
// the issues left inside cycles.
type CycleError struct {
	Kind  model.RelationKind
	Path  []int
	Among bool
}

func (e *CycleError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = model.FormatID(id)
	}
	if e.Among {
		return fmt.Sprintf("%s cycle detected among issues: %s", e.Kind, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("cannot link: %s would create a %s cycle", strings.Join(parts, " -> "), e.Kind)
}

func (e *CycleError) Unwrap() error { return model.ErrCyclicRelation }

// Graph is the adjacency view of a set of relations, indexed by issue in
// both directions.
type Graph struct {
	edges []model.Relation
	out   map[int][]int // issue ID -> indexes of relations it is the source of
	in    map[int][]int // issue ID -> indexes of relations it is the target of
}

// New builds a graph from stored relations. Relations are taken as they are:
// no duplicate or cycle validation is applied, because persisted data may
// legitimately contain forced cycles.
func New(relations []model.Relation) *Graph {
	g := &Graph{}
	g.reindex(relations)
	return g
}

func (g *Graph) reindex(relations []model.Relation) {
	g.edges = make([]model.Relation, 0, len(relations))
	g.out = make(map[int][]int)
	g.in = make(map[int][]int)
	for _, r := range relations {
		g.insert(r.Normalize())
	}
}

func (g *Graph) insert(r model.Relation) {
	idx := len(g.edges)
	g.edges = append(g.edges, r)
	g.out[r.FromID] = append(g.out[r.FromID], idx)
	g.in[r.ToID] = append(g.in[r.ToID], idx)
}

// Relations returns every relation in the graph in insertion order.
func (g *Graph) Relations() []model.Relation {
	out := make([]model.Relation, len(g.edges))
	copy(out, g.edges)
	return out
}

// For returns the relations touching issueID, outgoing first.
func (g *Graph) For(issueID int) []model.Relation {
	var out []model.Relation
	for _, idx := range g.out[issueID] {
		out = append(out, g.edges[idx])
	}
	for _, idx := range g.in[issueID] {
		out = append(out, g.edges[idx])
	}
	return out
}

// Add validates and inserts a relation, returning it in its stored
// direction. Self relations and exact duplicates are always rejected. For
// ordering kinds (precedes, blocks) the insertion is also rejected with a
// *CycleError when the target already reaches the source along the same
// kind, unless force is set.
func (g *Graph) Add(rel model.Relation, force bool) (model.Relation, error) {
	if err := model.ValidateRelationKind(rel.Kind); err != nil {
		return rel, err
	}
	rel = rel.Normalize()

	if rel.FromID == rel.ToID {
		return rel, ErrSelfRelation
	}
	if g.hasDuplicate(rel) {
		return rel, ErrDuplicateRelation
	}

	if !force && rel.Kind.IsOrdering() {
		if path := g.path(rel.ToID, rel.FromID, rel.Kind); path != nil {
			return rel, &CycleError{Kind: rel.Kind, Path: append([]int{rel.FromID}, path...)}
		}
	}

	g.insert(rel)
	return rel, nil
}

// hasDuplicate reports whether an equivalent relation is already stored.
// relates is symmetric, so the reversed pair counts as well.
func (g *Graph) hasDuplicate(rel model.Relation) bool {
	for _, idx := range g.out[rel.FromID] {
		e := g.edges[idx]
		if e.Kind == rel.Kind && e.ToID == rel.ToID {
			return true
		}
	}
	if rel.Kind == model.RelationRelates {
		for _, idx := range g.out[rel.ToID] {
			e := g.edges[idx]
			if e.Kind == rel.Kind && e.ToID == rel.FromID {
				return true
			}
		}
	}
	return false
}

// path returns the chain of IDs from -> ... -> to following stored edges of
// kind, or nil when to is unreachable. Breadth-first, so the chain is a
// shortest one.
func (g *Graph) path(from, to int, kind model.RelationKind) []int {
	parent := map[int]int{from: from}
	queue := []int{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == to {
			var chain []int
			for n := to; n != from; n = parent[n] {
				chain = append(chain, n)
			}
			chain = append(chain, from)
			for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
				chain[i], chain[j] = chain[j], chain[i]
			}
			return chain
		}
		for _, idx := range g.out[current] {
			e := g.edges[idx]
			if e.Kind != kind {
				continue
			}
			if _, seen := parent[e.ToID]; !seen {
				parent[e.ToID] = current
				queue = append(queue, e.ToID)
			}
		}
	}
	return nil
}

// Remove deletes the relation with the given ID. It reports whether a
// relation was removed.
func (g *Graph) Remove(id int) bool {
	kept := make([]model.Relation, 0, len(g.edges))
	for _, e := range g.edges {
		if e.ID != id {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(g.edges) {
		return false
	}
	g.reindex(kept)
	return true
}

// RemoveIssue deletes every relation touching issueID and returns them.
func (g *Graph) RemoveIssue(issueID int) []model.Relation {
	var removed, kept []model.Relation
	for _, e := range g.edges {
		if e.FromID == issueID || e.ToID == issueID {
			removed = append(removed, e)
		} else {
			kept = append(kept, e)
		}
	}
	if len(removed) > 0 {
		g.reindex(kept)
	}
	return removed
}

// Neighbors returns the issues one step away from issueID along kind.
// Derived kinds walk stored edges backwards; relates walks both ways.
func (g *Graph) Neighbors(issueID int, kind model.RelationKind) []int {
	var out []int
	stored := kind.Stored()
	if !kind.IsDerived() {
		for _, idx := range g.out[issueID] {
			if g.edges[idx].Kind == stored {
				out = append(out, g.edges[idx].ToID)
			}
		}
	}
	if kind.IsDerived() || kind == model.RelationRelates {
		for _, idx := range g.in[issueID] {
			if g.edges[idx].Kind == stored {
				out = append(out, g.edges[idx].FromID)
			}
		}
	}
	return out
}

// Walk visits every issue reachable from start along kind, each at most
// once, in depth-first order. start itself is never visited. visit returns
// false to stop the walk from descending past an issue.
func (g *Graph) Walk(start int, kind model.RelationKind, visit func(id int) bool) {
	g.walk(start, func(id int) []int { return g.Neighbors(id, kind) }, visit)
}

func (g *Graph) walk(start int, next func(id int) []int, visit func(id int) bool) {
	visited := map[int]bool{start: true}
	stack := reversed(next(start))
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		if !visit(id) {
			continue
		}
		for _, n := range reversed(next(id)) {
			if !visited[n] {
				stack = append(stack, n)
			}
		}
	}
}

// Closure returns the sorted set of issues reachable from issueID along
// kind, excluding issueID.
func (g *Graph) Closure(issueID int, kind model.RelationKind) []int {
	var ids []int
	g.Walk(issueID, kind, func(id int) bool {
		ids = append(ids, id)
		return true
	})
	sort.Ints(ids)
	return ids
}

// DependentIssues returns the sorted set of issues reachable from issueID
// through outgoing relations of any kind, excluding issueID.
func (g *Graph) DependentIssues(issueID int) []int {
	var ids []int
	next := func(id int) []int {
		var out []int
		for _, idx := range g.out[id] {
			out = append(out, g.edges[idx].ToID)
		}
		return out
	}
	g.walk(issueID, next, func(id int) bool {
		ids = append(ids, id)
		return true
	})
	sort.Ints(ids)
	return ids
}

// Blockers returns the issues that block issueID.
func (g *Graph) Blockers(issueID int) []int {
	return g.Neighbors(issueID, model.RelationBlockedBy)
}

// Blocked reports whether any issue blocking issueID is still open.
func (g *Graph) Blocked(issueID int, isClosed func(id int) bool) bool {
	for _, id := range g.Blockers(issueID) {
		if !isClosed(id) {
			return true
		}
	}
	return false
}

func reversed(ids []int) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

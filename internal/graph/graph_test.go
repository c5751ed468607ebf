package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

func rel(id, from, to int, kind model.RelationKind) model.Relation {
	return model.Relation{ID: id, FromID: from, ToID: to, Kind: kind}
}

// mustAdd inserts a relation and fails the test if Add returns an error.
func mustAdd(t *testing.T, g *Graph, from, to int, kind model.RelationKind, force bool) {
	t.Helper()
	if _, err := g.Add(model.Relation{FromID: from, ToID: to, Kind: kind}, force); err != nil {
		t.Fatalf("adding %d %s %d: %v", from, kind, to, err)
	}
}

func TestAddSelfRelation(t *testing.T) {
	g := New(nil)
	_, err := g.Add(rel(0, 1, 1, model.RelationRelates), true)
	if !errors.Is(err, ErrSelfRelation) {
		t.Errorf("expected ErrSelfRelation, got %v", err)
	}
}

func TestAddDuplicate(t *testing.T) {
	g := New(nil)
	mustAdd(t, g, 1, 2, model.RelationBlocks, false)

	_, err := g.Add(rel(0, 1, 2, model.RelationBlocks), false)
	if !errors.Is(err, ErrDuplicateRelation) {
		t.Errorf("expected ErrDuplicateRelation, got %v", err)
	}

	// The inverse view of the same edge is the same relation.
	_, err = g.Add(rel(0, 2, 1, model.RelationBlockedBy), true)
	if !errors.Is(err, ErrDuplicateRelation) {
		t.Errorf("blocked_by view: expected ErrDuplicateRelation, got %v", err)
	}

	// A different kind over the same pair is fine.
	mustAdd(t, g, 1, 2, model.RelationRelates, false)

	_, err = g.Add(rel(0, 2, 1, model.RelationRelates), false)
	if !errors.Is(err, ErrDuplicateRelation) {
		t.Errorf("reversed relates: expected ErrDuplicateRelation, got %v", err)
	}
}

func TestAddInvalidKind(t *testing.T) {
	g := New(nil)
	if _, err := g.Add(rel(0, 1, 2, "depends_on"), false); err == nil {
		t.Error("expected error for unknown relation kind")
	}
}

func TestAddNormalizesDerivedKinds(t *testing.T) {
	g := New(nil)
	stored, err := g.Add(rel(0, 2, 1, model.RelationFollows), false)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if stored.FromID != 1 || stored.ToID != 2 || stored.Kind != model.RelationPrecedes {
		t.Errorf("stored = %+v, want 1 precedes 2", stored)
	}
}

func TestAddCycleDetection(t *testing.T) {
	g := New(nil)
	mustAdd(t, g, 1, 2, model.RelationPrecedes, false)
	mustAdd(t, g, 2, 3, model.RelationPrecedes, false)

	_, err := g.Add(rel(0, 3, 1, model.RelationPrecedes), false)
	if !errors.Is(err, model.ErrCyclicRelation) {
		t.Fatalf("expected ErrCyclicRelation, got %v", err)
	}
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %T", err)
	}
	if diff := cmp.Diff([]int{3, 1, 2, 3}, ce.Path); diff != "" {
		t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
	}
	if got := len(g.Relations()); got != 2 {
		t.Errorf("rejected relation was stored: %d relations", got)
	}

	// Cycles across kinds do not count.
	mustAdd(t, g, 3, 1, model.RelationBlocks, false)
	// Non-ordering kinds are never cycle-checked.
	mustAdd(t, g, 3, 1, model.RelationRelates, false)
}

func TestAddForceSkipsCycleCheck(t *testing.T) {
	g := New(nil)
	mustAdd(t, g, 1, 2, model.RelationBlocks, false)
	mustAdd(t, g, 2, 1, model.RelationBlocks, true)

	if got := len(g.Relations()); got != 2 {
		t.Errorf("Relations() has %d entries, want 2", got)
	}
}

// dependentFixture builds 1 -> 2 -> 3 -> 8 along precedes.
func dependentFixture(t *testing.T) *Graph {
	t.Helper()
	g := New(nil)
	mustAdd(t, g, 1, 2, model.RelationPrecedes, false)
	mustAdd(t, g, 2, 3, model.RelationPrecedes, false)
	mustAdd(t, g, 3, 8, model.RelationPrecedes, false)
	return g
}

func TestDependentIssues(t *testing.T) {
	g := dependentFixture(t)
	if diff := cmp.Diff([]int{2, 3, 8}, g.DependentIssues(1)); diff != "" {
		t.Errorf("DependentIssues(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestDependentIssuesWithForcedBackEdge(t *testing.T) {
	g := dependentFixture(t)
	mustAdd(t, g, 8, 1, model.RelationPrecedes, true)

	if diff := cmp.Diff([]int{2, 3, 8}, g.DependentIssues(1)); diff != "" {
		t.Errorf("DependentIssues(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestDependentIssuesWithForcedCycle(t *testing.T) {
	g := New(nil)
	mustAdd(t, g, 1, 2, model.RelationPrecedes, false)
	mustAdd(t, g, 2, 3, model.RelationPrecedes, false)
	mustAdd(t, g, 3, 1, model.RelationPrecedes, true)

	if diff := cmp.Diff([]int{2, 3}, g.DependentIssues(1)); diff != "" {
		t.Errorf("DependentIssues(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestDependentIssuesWithRelatesCycles(t *testing.T) {
	g := dependentFixture(t)
	mustAdd(t, g, 8, 1, model.RelationRelates, false)
	mustAdd(t, g, 3, 2, model.RelationRelates, false)

	if diff := cmp.Diff([]int{2, 3, 8}, g.DependentIssues(1)); diff != "" {
		t.Errorf("DependentIssues(1) mismatch (-want +got):\n%s", diff)
	}
}

func TestClosure(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 2, model.RelationPrecedes),
		rel(2, 2, 3, model.RelationPrecedes),
		rel(3, 4, 1, model.RelationPrecedes),
		rel(4, 5, 1, model.RelationDuplicates),
		rel(5, 6, 5, model.RelationDuplicates),
		rel(6, 1, 7, model.RelationRelates),
	})

	tests := []struct {
		name  string
		start int
		kind  model.RelationKind
		want  []int
	}{
		{"successors", 1, model.RelationPrecedes, []int{2, 3}},
		{"predecessors", 3, model.RelationFollows, []int{1, 2, 4}},
		{"duplicated by", 1, model.RelationDuplicatedBy, []int{5, 6}},
		{"duplicates outward", 6, model.RelationDuplicates, []int{1, 5}},
		{"relates both ways", 7, model.RelationRelates, []int{1}},
		{"leaf", 3, model.RelationPrecedes, nil},
	}

	for _, tt := range tests {
		got := g.Closure(tt.start, tt.kind)
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("%s: Closure(%d, %s) mismatch (-want +got):\n%s", tt.name, tt.start, tt.kind, diff)
		}
	}
}

func TestClosureTerminatesOnCycle(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 2, model.RelationDuplicates),
		rel(2, 2, 3, model.RelationDuplicates),
		rel(3, 3, 1, model.RelationDuplicates),
	})
	if diff := cmp.Diff([]int{2, 3}, g.Closure(1, model.RelationDuplicatedBy)); diff != "" {
		t.Errorf("Closure mismatch (-want +got):\n%s", diff)
	}
}

func TestWalkStopsDescending(t *testing.T) {
	g := dependentFixture(t)

	var visited []int
	g.Walk(1, model.RelationPrecedes, func(id int) bool {
		visited = append(visited, id)
		return id != 3
	})
	if diff := cmp.Diff([]int{2, 3}, visited); diff != "" {
		t.Errorf("visited mismatch (-want +got):\n%s", diff)
	}
}

func TestBlocked(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 3, model.RelationBlocks),
		rel(2, 2, 3, model.RelationBlocks),
	})

	closed := map[int]bool{1: true}
	isClosed := func(id int) bool { return closed[id] }

	if !g.Blocked(3, isClosed) {
		t.Error("Blocked(3) = false, want true while 2 is open")
	}
	closed[2] = true
	if g.Blocked(3, isClosed) {
		t.Error("Blocked(3) = true, want false once all blockers are closed")
	}
	if g.Blocked(1, isClosed) {
		t.Error("a blocker is not itself blocked")
	}
}

func TestRemove(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 2, model.RelationPrecedes),
		rel(2, 2, 3, model.RelationPrecedes),
		rel(3, 3, 4, model.RelationRelates),
	})

	if !g.Remove(2) {
		t.Fatal("Remove(2) = false, want true")
	}
	if g.Remove(2) {
		t.Error("Remove(2) twice = true, want false")
	}
	if diff := cmp.Diff([]int{2}, g.Closure(1, model.RelationPrecedes)); diff != "" {
		t.Errorf("Closure after Remove mismatch (-want +got):\n%s", diff)
	}

	removed := g.RemoveIssue(3)
	if len(removed) != 1 || removed[0].ID != 3 {
		t.Errorf("RemoveIssue(3) = %+v, want relation 3", removed)
	}
	if len(g.For(4)) != 0 {
		t.Errorf("For(4) = %+v, want none", g.For(4))
	}
}

func TestLevels(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 2, model.RelationPrecedes),
		rel(2, 1, 3, model.RelationPrecedes),
		rel(3, 2, 4, model.RelationPrecedes),
		rel(4, 3, 4, model.RelationPrecedes),
		rel(5, 5, 6, model.RelationBlocks),
	})

	levels, err := g.Levels(model.RelationPrecedes)
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	want := [][]int{{1}, {2, 3}, {4}}
	if diff := cmp.Diff(want, levels); diff != "" {
		t.Errorf("Levels mismatch (-want +got):\n%s", diff)
	}
}

func TestLevelsCycle(t *testing.T) {
	g := New([]model.Relation{
		rel(1, 1, 2, model.RelationBlocks),
		rel(2, 2, 3, model.RelationBlocks),
		rel(3, 3, 2, model.RelationBlocks),
	})

	levels, err := g.Levels(model.RelationBlocks)
	var ce *CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *CycleError, got %v", err)
	}
	if diff := cmp.Diff([]int{2, 3}, ce.Path); diff != "" {
		t.Errorf("cycle IDs mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]int{{1}}, levels); diff != "" {
		t.Errorf("partial levels mismatch (-want +got):\n%s", diff)
	}
}

package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

func newIssue(subject string) *model.Issue {
	return &model.Issue{
		ProjectID:    alpha,
		TypeID:       bug,
		StatusID:     statusNew,
		AuthorID:     alice,
		Subject:      subject,
		CustomValues: map[int]string{severity: "low"},
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
}

func mustSaveIssue(t *testing.T, s *Store, subject string, mutate ...func(*model.Issue)) *model.Issue {
	t.Helper()
	issue := newIssue(subject)
	for _, m := range mutate {
		m(issue)
	}
	if err := s.Save(context.Background(), &lifecycle.ChangeSet{ID: "cs-" + subject, Issue: issue}); err != nil {
		t.Fatalf("Save(%q) failed: %v", subject, err)
	}
	return issue
}

func TestSaveInsertsIssue(t *testing.T) {
	s := mustStore(t)
	start := mustDate(t, "2024-03-04")
	hours := 2.5

	issue := mustSaveIssue(t, s, "Crash on save", func(i *model.Issue) {
		i.AssignedToID = ptr(bob)
		i.CategoryID = ptr(1)
		i.FixedVersionID = ptr(1)
		i.StartDate = &start
		i.EstimatedHours = &hours
		i.WatcherIDs = []int{bob, carol}
	})
	if issue.ID == 0 {
		t.Fatal("Save did not assign an ID")
	}

	got, err := s.LoadIssue(context.Background(), issue.ID)
	if err != nil {
		t.Fatalf("LoadIssue failed: %v", err)
	}
	if diff := cmp.Diff(issue, got); diff != "" {
		t.Errorf("LoadIssue mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadIssueNotFound(t *testing.T) {
	s := mustStore(t)

	_, err := s.LoadIssue(context.Background(), 42)
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadIssue(42) err = %v, want ErrNotFound", err)
	}
}

func TestSaveUpdateBumpsLockVersion(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	issue := mustSaveIssue(t, s, "first")

	issue.Subject = "renamed"
	issue.CustomValues = map[int]string{severity: "high"}
	if err := s.Save(ctx, &lifecycle.ChangeSet{ID: "cs-2", Issue: issue}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if issue.LockVersion != 1 {
		t.Errorf("LockVersion = %d, want 1", issue.LockVersion)
	}

	got, err := s.LoadIssue(ctx, issue.ID)
	if err != nil {
		t.Fatalf("LoadIssue failed: %v", err)
	}
	if got.Subject != "renamed" || got.LockVersion != 1 || got.CustomValues[severity] != "high" {
		t.Errorf("stored issue = %q v%d severity %q, want renamed v1 high", got.Subject, got.LockVersion, got.CustomValues[severity])
	}
}

func TestSaveStaleWriteRollsBack(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	a := mustSaveIssue(t, s, "a")
	b := mustSaveIssue(t, s, "b")

	// Another writer updates b first.
	other, err := s.LoadIssue(ctx, b.ID)
	if err != nil {
		t.Fatalf("LoadIssue failed: %v", err)
	}
	if err := s.Save(ctx, &lifecycle.ChangeSet{ID: "other", Issue: other}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	a.Subject = "a changed"
	b.Subject = "b changed"
	cs := &lifecycle.ChangeSet{
		ID:       "stale",
		Issue:    a,
		Derived:  []*model.Issue{b},
		Journals: []*model.Journal{{IssueID: a.ID, ChangeSetID: "stale", Notes: "edit", CreatedAt: testNow}},
	}
	err = s.Save(ctx, cs)
	if !errors.Is(err, model.ErrStaleWrite) {
		t.Fatalf("Save err = %v, want ErrStaleWrite", err)
	}

	got, err := s.LoadIssue(ctx, a.ID)
	if err != nil {
		t.Fatalf("LoadIssue failed: %v", err)
	}
	if got.Subject != "a" || got.LockVersion != 0 {
		t.Errorf("a = %q v%d after stale write, want a v0", got.Subject, got.LockVersion)
	}
	if a.LockVersion != 0 {
		t.Errorf("in-memory LockVersion = %d, want 0 after failed save", a.LockVersion)
	}
	journals, err := s.Journals(ctx, a.ID, 0)
	if err != nil {
		t.Fatalf("Journals failed: %v", err)
	}
	if len(journals) != 0 {
		t.Errorf("got %d journals after stale write, want 0", len(journals))
	}
}

func TestSaveUpdateMissingIssue(t *testing.T) {
	s := mustStore(t)
	issue := newIssue("ghost")
	issue.ID = 99

	err := s.Save(context.Background(), &lifecycle.ChangeSet{ID: "x", Issue: issue})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Save err = %v, want ErrNotFound", err)
	}
}

func TestSaveWritesJournalsAndRelations(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	a := mustSaveIssue(t, s, "a")

	b := newIssue("b")
	cs := &lifecycle.ChangeSet{
		ID:    "cs-new",
		Issue: b,
		Journals: []*model.Journal{{
			ChangeSetID: "cs-new",
			UserID:      alice,
			Details:     map[string]model.Change{"subject": {New: "b"}},
			CreatedAt:   testNow,
		}},
		AddedRelations: []*model.Relation{{FromID: a.ID, ToID: a.ID + 1, Kind: model.RelationRelates, CreatedAt: testNow}},
	}
	if err := s.Save(ctx, cs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if cs.Journals[0].IssueID != b.ID || cs.Journals[0].ID == 0 {
		t.Errorf("journal = issue %d id %d, want issue %d with an ID", cs.Journals[0].IssueID, cs.Journals[0].ID, b.ID)
	}
	if cs.AddedRelations[0].ID == 0 {
		t.Error("relation ID not assigned")
	}

	journals, err := s.Journals(ctx, b.ID, 0)
	if err != nil {
		t.Fatalf("Journals failed: %v", err)
	}
	want := []model.Journal{{
		ID:          cs.Journals[0].ID,
		IssueID:     b.ID,
		UserID:      alice,
		ChangeSetID: "cs-new",
		Details:     map[string]model.Change{"subject": {New: "b"}},
		CreatedAt:   testNow,
	}}
	if diff := cmp.Diff(want, journals); diff != "" {
		t.Errorf("Journals mismatch (-want +got):\n%s", diff)
	}

	rels, err := s.LoadRelationsFor(ctx, b.ID)
	if err != nil {
		t.Fatalf("LoadRelationsFor failed: %v", err)
	}
	if len(rels) != 1 || rels[0].FromID != a.ID || rels[0].ToID != b.ID {
		t.Errorf("relations = %+v, want a relates b", rels)
	}
}

func TestSaveDestroy(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	a := mustSaveIssue(t, s, "a")
	b := mustSaveIssue(t, s, "b")
	rel := mustRelate(t, s, a.ID, b.ID, model.RelationBlocks)
	entry := &model.TimeEntry{IssueID: ptr(a.ID), UserID: bob, Hours: 1.5}
	if err := s.LogTime(ctx, entry); err != nil {
		t.Fatalf("LogTime failed: %v", err)
	}

	cs := &lifecycle.ChangeSet{ID: "destroy", Issue: a, RemovedRelations: []int{rel.ID}, Destroy: true}
	if err := s.Save(ctx, cs); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := s.LoadIssue(ctx, a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadIssue after destroy err = %v, want ErrNotFound", err)
	}
	rels, err := s.LoadRelationsFor(ctx, b.ID)
	if err != nil {
		t.Fatalf("LoadRelationsFor failed: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("got %d relations after destroy, want 0", len(rels))
	}
	entries, err := s.TimeEntries(ctx, alpha, 0)
	if err != nil {
		t.Fatalf("TimeEntries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].IssueID != nil {
		t.Errorf("time entries = %+v, want one entry detached from its issue", entries)
	}
}

func TestSaveMovesTimeEntries(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	issue := mustSaveIssue(t, s, "moving")
	if err := s.LogTime(ctx, &model.TimeEntry{IssueID: ptr(issue.ID), UserID: bob, Hours: 3}); err != nil {
		t.Fatalf("LogTime failed: %v", err)
	}

	issue.ProjectID = beta
	if err := s.Save(ctx, &lifecycle.ChangeSet{ID: "move", Issue: issue, MoveTimeEntries: true}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := s.TimeEntries(ctx, beta, issue.ID)
	if err != nil {
		t.Fatalf("TimeEntries failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries in beta, want 1", len(entries))
	}
	spent, err := s.SpentHours(ctx, issue.ID)
	if err != nil {
		t.Fatalf("SpentHours failed: %v", err)
	}
	if spent != 3 {
		t.Errorf("SpentHours = %v, want 3", spent)
	}
}

func TestLogTimeRejectsNonPositiveHours(t *testing.T) {
	s := mustStore(t)
	issue := mustSaveIssue(t, s, "a")

	if err := s.LogTime(context.Background(), &model.TimeEntry{IssueID: ptr(issue.ID), UserID: bob}); err == nil {
		t.Error("LogTime with zero hours succeeded, want error")
	}
}

func TestListIssues(t *testing.T) {
	s := mustStore(t)
	ctx := context.Background()
	a := mustSaveIssue(t, s, "a")
	b := mustSaveIssue(t, s, "b", func(i *model.Issue) { i.StatusID = statusClosed })
	c := mustSaveIssue(t, s, "c", func(i *model.Issue) { i.ProjectID = beta })

	tests := []struct {
		name string
		opts ListOptions
		want []int
	}{
		{"all", ListOptions{}, []int{a.ID, b.ID, c.ID}},
		{"project", ListOptions{ProjectID: alpha}, []int{a.ID, b.ID}},
		{"open only", ListOptions{OpenOnly: true}, []int{a.ID, c.ID}},
		{"status", ListOptions{StatusID: statusClosed}, []int{b.ID}},
		{"limit", ListOptions{Limit: 1}, []int{a.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			issues, err := s.ListIssues(ctx, tt.opts)
			if err != nil {
				t.Fatalf("ListIssues failed: %v", err)
			}
			var got []int
			for _, i := range issues {
				got = append(got, i.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ListIssues IDs mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) failed: %v", s, err)
	}
	return d
}

package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

func hasError(errs *model.Errors, field string, kind error) bool {
	for _, ve := range errs.On(field) {
		if errors.Is(ve, kind) {
			return true
		}
	}
	return false
}

func ids(issues []*model.Issue) []int {
	var out []int
	for _, i := range issues {
		out = append(out, i.ID)
	}
	return out
}

func TestCreateAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, f.actor, Attributes{
		AttrProject:  projAlpha,
		AttrType:     typeBug,
		AttrSubject:  "  Crash on save  ",
		AttrCategory: catAlphaUI,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got := res.Issue
	if got.ID == 0 {
		t.Fatal("Create did not assign an ID")
	}
	if got.Subject != "Crash on save" {
		t.Errorf("Subject = %q, want %q", got.Subject, "Crash on save")
	}
	if got.AuthorID != userAlice {
		t.Errorf("AuthorID = %d, want %d", got.AuthorID, userAlice)
	}
	if got.StatusID != statusNew {
		t.Errorf("StatusID = %d, want %d", got.StatusID, statusNew)
	}
	if !got.IsAssignedTo(userBob) {
		t.Errorf("AssignedToID = %v, want category default %d", got.AssignedToID, userBob)
	}
	if got.CustomValues[fieldSeverity] != "low" {
		t.Errorf("severity = %q, want default %q", got.CustomValues[fieldSeverity], "low")
	}
	if !got.CreatedAt.Equal(testNow) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testNow)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.Event != EventIssueAdded {
		t.Errorf("Event = %q, want %q", n.Event, EventIssueAdded)
	}
	if diff := cmp.Diff([]string{"alice@example.com", "bob@example.com"}, n.Recipients); diff != "" {
		t.Errorf("Recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateAppliesTypeBeforeCustomValues(t *testing.T) {
	f := newFixture(t)

	// The ticket field only applies to features, so the value survives only
	// when the type is assigned before the custom values.
	res, err := f.engine.Create(context.Background(), f.actor, Attributes{
		AttrCustomFields: map[string]string{"cf_2": "42"},
		AttrSubject:      "Export",
		AttrProject:      projAlpha,
		AttrType:         typeFeature,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	want := map[int]string{fieldTicket: "42"}
	if diff := cmp.Diff(want, res.Issue.CustomValues); diff != "" {
		t.Errorf("CustomValues mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateCollectsAllErrors(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Create(context.Background(), f.actor, Attributes{
		AttrProject:      projAlpha,
		AttrType:         typeFeature,
		AttrDueDate:      "2024-03-01",
		AttrStartDate:    "2024-03-05",
		AttrFixedVersion: versionLocked,
	})
	if err == nil {
		t.Fatal("Create succeeded, want validation errors")
	}
	var errs *model.Errors
	if !errors.As(err, &errs) {
		t.Fatalf("err = %T, want *model.Errors", err)
	}

	checks := []struct {
		field string
		kind  error
	}{
		{AttrSubject, model.ErrRequired},
		{model.CustomFieldKey(fieldTicket), model.ErrRequired},
		{AttrDueDate, model.ErrInvalidValue},
		{AttrFixedVersion, model.ErrInvalidVersionAssignment},
	}
	for _, c := range checks {
		if !hasError(res.Errors, c.field, c.kind) {
			t.Errorf("missing %s error on %s; got %v", model.KindName(c.kind), c.field, res.Errors)
		}
	}
	if len(f.store.saves) != 0 {
		t.Errorf("saves = %d, want 0", len(f.store.saves))
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.notifier.sent))
	}
}

func TestDisabledType(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.engine.Create(ctx, f.actor, Attributes{
		AttrProject: projAlpha,
		AttrType:    typeSupport,
		AttrSubject: "Help",
	})
	if err == nil || !hasError(res.Errors, AttrType, model.ErrDisabledType) {
		t.Fatalf("Create with disabled type: err = %v, want DisabledType", err)
	}

	// An issue whose type was disabled after creation may still be edited.
	legacy := f.bug(t, "legacy", func(i *model.Issue) {
		i.TypeID = typeSupport
		i.CustomValues = nil
	})
	if _, err := f.engine.ValidateAndApply(ctx, f.actor, legacy, Attributes{AttrSubject: "legacy, renamed"}); err != nil {
		t.Errorf("editing an issue of a since-disabled type: %v", err)
	}
}

func TestVersionAssignment(t *testing.T) {
	tests := []struct {
		name    string
		project int
		version int
		wantErr bool
	}{
		{"open own version", projAlpha, versionOpen, false},
		{"locked version", projAlpha, versionLocked, true},
		{"closed version", projAlpha, versionClosed, true},
		{"version of another project", projAlpha, versionBeta, true},
		{"unshared version from another project", projBeta, versionOpen, true},
		{"version shared with descendants", projChild, versionAlphaShared, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.engine.Create(context.Background(), f.actor, Attributes{
				AttrProject:      tt.project,
				AttrType:         typeBug,
				AttrSubject:      "versioned",
				AttrFixedVersion: tt.version,
			})
			gotErr := err != nil && hasError(res.Errors, AttrFixedVersion, model.ErrInvalidVersionAssignment)
			if gotErr != tt.wantErr {
				t.Errorf("InvalidVersionAssignment = %v, want %v (err: %v)", gotErr, tt.wantErr, err)
			}
		})
	}
}

func TestVersionKeptAndReopened(t *testing.T) {
	ctx := context.Background()

	t.Run("edit on locked version", func(t *testing.T) {
		f := newFixture(t)
		issue := f.bug(t, "locked", func(i *model.Issue) { i.FixedVersionID = intPtr(versionLocked) })
		if _, err := f.engine.ValidateAndApply(ctx, f.actor, issue, Attributes{AttrSubject: "still locked"}); err != nil {
			t.Errorf("ValidateAndApply: %v", err)
		}
	})

	t.Run("reopen on closed version", func(t *testing.T) {
		f := newFixture(t)
		issue := f.bug(t, "shipped", func(i *model.Issue) {
			i.FixedVersionID = intPtr(versionClosed)
			i.StatusID = statusClosed
		})
		res, err := f.engine.ValidateAndApply(ctx, f.actor, issue, Attributes{AttrStatus: statusNew})
		if err == nil {
			t.Fatal("reopen succeeded, want VersionNotReassignable")
		}
		if !hasError(res.Errors, model.BaseField, model.ErrVersionNotReassignable) {
			t.Errorf("errors = %v, want VersionNotReassignable on base", res.Errors)
		}
	})

	t.Run("reopen on locked version", func(t *testing.T) {
		f := newFixture(t)
		issue := f.bug(t, "frozen", func(i *model.Issue) {
			i.FixedVersionID = intPtr(versionLocked)
			i.StatusID = statusClosed
		})
		if _, err := f.engine.ValidateAndApply(ctx, f.actor, issue, Attributes{AttrStatus: statusNew}); err != nil {
			t.Errorf("ValidateAndApply: %v", err)
		}
	})
}

func TestRequiredFieldOnExistingIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	issue := f.bug(t, "old feature", func(i *model.Issue) {
		i.TypeID = typeFeature
		i.CustomValues = nil
	})
	if _, err := f.engine.ValidateAndApply(ctx, f.actor, issue, Attributes{AttrSubject: "renamed"}); err != nil {
		t.Fatalf("untouched missing required field: %v", err)
	}

	issue = f.load(t, issue.ID)
	res, err := f.engine.ValidateAndApply(ctx, f.actor, issue, Attributes{AttrCustomFields: map[int]string{fieldTicket: "abc"}})
	if err == nil || !hasError(res.Errors, model.CustomFieldKey(fieldTicket), model.ErrInvalidValue) {
		t.Errorf("err = %v, want InvalidValue on %s", err, model.CustomFieldKey(fieldTicket))
	}
}

func TestCloseBlockedIssue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	blocker := f.bug(t, "blocker")
	blocked := f.bug(t, "blocked")
	f.store.relate(blocker.ID, blocked.ID, model.RelationBlocks)

	res, err := f.engine.Close(ctx, f.actor, blocked, statusClosed, "")
	if err == nil {
		t.Fatal("Close succeeded on a blocked issue")
	}
	if !hasError(res.Errors, model.BaseField, model.ErrBlocked) {
		t.Errorf("errors = %v, want Blocked on base", res.Errors)
	}

	statuses, err := f.engine.AllowedStatuses(ctx, blocked)
	if err != nil {
		t.Fatalf("AllowedStatuses: %v", err)
	}
	var got []int
	for _, s := range statuses {
		got = append(got, s.ID)
	}
	if diff := cmp.Diff([]int{statusNew, statusProgress}, got); diff != "" {
		t.Errorf("AllowedStatuses mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.engine.Close(ctx, f.actor, blocker, statusClosed, ""); err != nil {
		t.Fatalf("Close blocker: %v", err)
	}
	if _, err := f.engine.Close(ctx, f.actor, f.load(t, blocked.ID), statusClosed, ""); err != nil {
		t.Errorf("Close after blocker closed: %v", err)
	}
}

func TestCloseRejectsOpenStatus(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "open")

	res, err := f.engine.Close(context.Background(), f.actor, issue, statusProgress, "")
	if err == nil || !hasError(res.Errors, AttrStatus, model.ErrInvalidValue) {
		t.Errorf("err = %v, want InvalidValue on status_id", err)
	}
}

func TestCloseCascadesToDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	orig := f.bug(t, "original")
	dup := f.bug(t, "duplicate")
	dupOfDup := f.bug(t, "duplicate of duplicate")
	rejected := f.bug(t, "already rejected", func(i *model.Issue) { i.StatusID = statusRejected })
	f.store.relate(dup.ID, orig.ID, model.RelationDuplicates)
	f.store.relate(dupOfDup.ID, dup.ID, model.RelationDuplicates)
	f.store.relate(rejected.ID, orig.ID, model.RelationDuplicates)

	res, err := f.engine.Close(ctx, f.actor, orig, statusClosed, "fixed")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if diff := cmp.Diff([]int{dup.ID, dupOfDup.ID}, ids(res.Cascaded)); diff != "" {
		t.Errorf("Cascaded mismatch (-want +got):\n%s", diff)
	}
	for _, id := range []int{orig.ID, dup.ID, dupOfDup.ID} {
		if got := f.load(t, id).StatusID; got != statusClosed {
			t.Errorf("issue %d StatusID = %d, want %d", id, got, statusClosed)
		}
	}
	if got := f.load(t, rejected.ID).StatusID; got != statusRejected {
		t.Errorf("rejected duplicate StatusID = %d, want %d", got, statusRejected)
	}

	if len(f.store.saves) != 1 {
		t.Fatalf("saves = %d, want a single change set", len(f.store.saves))
	}
	if len(res.Journals) != 3 {
		t.Fatalf("journals = %d, want 3", len(res.Journals))
	}
	for _, j := range res.Journals {
		if j.ChangeSetID != res.Journals[0].ChangeSetID {
			t.Errorf("journal of issue %d has change set %q, want %q", j.IssueID, j.ChangeSetID, res.Journals[0].ChangeSetID)
		}
	}
	if res.Journals[0].Notes != "fixed" {
		t.Errorf("Notes = %q, want %q", res.Journals[0].Notes, "fixed")
	}
}

func TestCloseDuplicateLeavesOriginalOpen(t *testing.T) {
	f := newFixture(t)
	orig := f.bug(t, "original")
	dup := f.bug(t, "duplicate")
	f.store.relate(dup.ID, orig.ID, model.RelationDuplicates)

	res, err := f.engine.Close(context.Background(), f.actor, dup, statusClosed, "")
	if err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(res.Cascaded) != 0 {
		t.Errorf("Cascaded = %v, want none", ids(res.Cascaded))
	}
	if got := f.load(t, orig.ID).StatusID; got != statusNew {
		t.Errorf("original StatusID = %d, want %d", got, statusNew)
	}
}

func TestDueDateChangeReschedulesSuccessors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.bug(t, "design", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-01"), mustDate(t, "2024-03-05")
	})
	b := f.bug(t, "build", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-06"), mustDate(t, "2024-03-08")
	})
	c := f.bug(t, "ship", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-04-01"), mustDate(t, "2024-04-01")
	})
	f.store.relate(a.ID, b.ID, model.RelationPrecedes)
	f.store.relate(c.ID, b.ID, model.RelationFollows)

	res, err := f.engine.ValidateAndApply(ctx, f.actor, a, Attributes{AttrDueDate: "2024-03-10"})
	if err != nil {
		t.Fatalf("ValidateAndApply: %v", err)
	}
	if diff := cmp.Diff([]int{b.ID}, ids(res.Rescheduled)); diff != "" {
		t.Errorf("Rescheduled mismatch (-want +got):\n%s", diff)
	}

	got := f.load(t, b.ID)
	if model.FormatDate(*got.StartDate) != "2024-03-11" || model.FormatDate(*got.DueDate) != "2024-03-13" {
		t.Errorf("b dates = %s..%s, want 2024-03-11..2024-03-13",
			model.FormatDate(*got.StartDate), model.FormatDate(*got.DueDate))
	}
	if got := f.load(t, c.ID); model.FormatDate(*got.StartDate) != "2024-04-01" {
		t.Errorf("c start = %s, want unchanged 2024-04-01", model.FormatDate(*got.StartDate))
	}
	if len(res.Journals) != 2 {
		t.Errorf("journals = %d, want 2", len(res.Journals))
	}
}

func TestStartBeforePredecessorRejected(t *testing.T) {
	f := newFixture(t)
	a := f.bug(t, "first", func(i *model.Issue) { i.DueDate = mustDate(t, "2024-03-10") })
	b := f.bug(t, "second", func(i *model.Issue) { i.StartDate = mustDate(t, "2024-03-11") })
	f.store.relate(a.ID, b.ID, model.RelationPrecedes)

	res, err := f.engine.ValidateAndApply(context.Background(), f.actor, b, Attributes{AttrStartDate: "2024-03-05"})
	if err == nil || !hasError(res.Errors, AttrStartDate, model.ErrInvalidValue) {
		t.Errorf("err = %v, want InvalidValue on start_date", err)
	}
}

func TestRelateReschedulesTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.bug(t, "first", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-01"), mustDate(t, "2024-03-10")
	})
	b := f.bug(t, "second", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-05"), mustDate(t, "2024-03-06")
	})

	// b follows a is stored as a precedes b.
	res, err := f.engine.Relate(ctx, f.actor, b.ID, a.ID, model.RelationFollows, false)
	if err != nil {
		t.Fatalf("Relate: %v", err)
	}
	want := model.Relation{ID: res.Relation.ID, FromID: a.ID, ToID: b.ID, Kind: model.RelationPrecedes, CreatedAt: testNow}
	if diff := cmp.Diff(want, *res.Relation); diff != "" {
		t.Errorf("Relation mismatch (-want +got):\n%s", diff)
	}
	got := f.load(t, b.ID)
	if model.FormatDate(*got.StartDate) != "2024-03-11" || model.FormatDate(*got.DueDate) != "2024-03-12" {
		t.Errorf("b dates = %s..%s, want 2024-03-11..2024-03-12",
			model.FormatDate(*got.StartDate), model.FormatDate(*got.DueDate))
	}
	if len(f.notifier.sent) != 1 || f.notifier.sent[0].Issue.ID != b.ID {
		t.Errorf("notifications = %+v, want one about the rescheduled issue", f.notifier.sent)
	}
}

func TestRelateJournalsInOneChangeSet(t *testing.T) {
	f := newFixture(t)
	a := f.bug(t, "first", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-01"), mustDate(t, "2024-03-10")
	})
	b := f.bug(t, "second", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-05"), mustDate(t, "2024-03-06")
	})

	if _, err := f.engine.Relate(context.Background(), f.actor, a.ID, b.ID, model.RelationPrecedes, false); err != nil {
		t.Fatalf("Relate: %v", err)
	}
	if len(f.store.saves) != 1 {
		t.Fatalf("saves = %d, want 1", len(f.store.saves))
	}
	cs := f.store.saves[0]
	if len(cs.AddedRelations) != 1 || len(cs.Derived) != 1 || cs.Derived[0].ID != b.ID {
		t.Errorf("change set = %d relations, derived %+v, want the relation and b", len(cs.AddedRelations), cs.Derived)
	}

	want := map[int]map[string]model.Change{
		a.ID: {"relation.precedes": {New: model.FormatID(b.ID)}},
		b.ID: {
			"relation.follows": {New: model.FormatID(a.ID)},
			AttrStartDate:      {Old: "2024-03-05", New: "2024-03-11"},
			AttrDueDate:        {Old: "2024-03-06", New: "2024-03-12"},
		},
	}
	got := make(map[int]map[string]model.Change)
	for _, j := range cs.Journals {
		if j.ChangeSetID != cs.ID {
			t.Errorf("journal of %d in change set %q, want %q", j.IssueID, j.ChangeSetID, cs.ID)
		}
		got[j.IssueID] = j.Details
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("journals mismatch (-want +got):\n%s", diff)
	}
}

func TestRelateStaleSuccessorWritesNothing(t *testing.T) {
	f := newFixture(t)
	a := f.bug(t, "first", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-01"), mustDate(t, "2024-03-10")
	})
	b := f.bug(t, "second", func(i *model.Issue) {
		i.StartDate, i.DueDate = mustDate(t, "2024-03-05"), mustDate(t, "2024-03-06")
	})
	f.store.bumpBeforeSave = b.ID

	res, err := f.engine.Relate(context.Background(), f.actor, a.ID, b.ID, model.RelationPrecedes, false)
	if !errors.Is(err, model.ErrStaleWrite) {
		t.Fatalf("err = %v, want ErrStaleWrite", err)
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	if len(f.store.relations) != 0 {
		t.Errorf("relations = %+v, want none", f.store.relations)
	}
	if got := model.FormatDate(*f.load(t, b.ID).StartDate); got != "2024-03-05" {
		t.Errorf("b start = %s, want 2024-03-05", got)
	}
	if len(f.store.journals) != 0 || len(f.notifier.sent) != 0 {
		t.Errorf("journals = %d, notifications = %d, want none", len(f.store.journals), len(f.notifier.sent))
	}
}

func TestRelateRejectsCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.bug(t, "a")
	b := f.bug(t, "b")
	c := f.bug(t, "c")
	f.store.relate(a.ID, b.ID, model.RelationPrecedes)
	f.store.relate(b.ID, c.ID, model.RelationPrecedes)

	_, err := f.engine.Relate(ctx, f.actor, c.ID, a.ID, model.RelationPrecedes, false)
	if !errors.Is(err, model.ErrCyclicRelation) {
		t.Fatalf("err = %v, want ErrCyclicRelation", err)
	}
	var ce *graph.CycleError
	if !errors.As(err, &ce) {
		t.Fatalf("err = %T, want *graph.CycleError", err)
	}
	if diff := cmp.Diff([]int{c.ID, a.ID, b.ID, c.ID}, ce.Path); diff != "" {
		t.Errorf("cycle path mismatch (-want +got):\n%s", diff)
	}

	if _, err := f.engine.Relate(ctx, f.actor, c.ID, a.ID, model.RelationPrecedes, true); err != nil {
		t.Errorf("forced Relate: %v", err)
	}
}

func TestRelateAcrossProjects(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t)
	a := f.bug(t, "alpha")
	b := f.bug(t, "beta", func(i *model.Issue) { i.ProjectID = projBeta })

	res, err := f.engine.Relate(ctx, f.actor, a.ID, b.ID, model.RelationRelates, false)
	if err == nil || !hasError(res.Errors, "to_id", model.ErrInvalidValue) {
		t.Errorf("err = %v, want InvalidValue on to_id", err)
	}

	f = newFixture(t, fieldSettings(func(s *config.Settings) { s.CrossProjectRelations = true }))
	a = f.bug(t, "alpha")
	b = f.bug(t, "beta", func(i *model.Issue) { i.ProjectID = projBeta })
	if _, err := f.engine.Relate(ctx, f.actor, a.ID, b.ID, model.RelationRelates, false); err != nil {
		t.Errorf("Relate with cross-project relations enabled: %v", err)
	}
}

func TestStaleWriteLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	orig := f.bug(t, "original")
	dup := f.bug(t, "duplicate")
	f.store.relate(dup.ID, orig.ID, model.RelationDuplicates)
	f.store.bumpBeforeSave = orig.ID

	res, err := f.engine.Close(context.Background(), f.actor, orig, statusClosed, "")
	if !errors.Is(err, model.ErrStaleWrite) {
		t.Fatalf("err = %v, want ErrStaleWrite", err)
	}
	if res != nil {
		t.Errorf("Result = %+v, want nil", res)
	}
	if got := f.load(t, dup.ID).StatusID; got != statusNew {
		t.Errorf("duplicate StatusID = %d, want %d", got, statusNew)
	}
	if len(f.store.journals) != 0 {
		t.Errorf("journals = %d, want 0", len(f.store.journals))
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.notifier.sent))
	}
}

func TestLineEndingOnlyEditIsNotJournaled(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "text", func(i *model.Issue) { i.Description = "line one\nline two" })

	res, err := f.engine.ValidateAndApply(context.Background(), f.actor, issue, Attributes{
		AttrDescription: "line one\r\nline two",
	})
	if err != nil {
		t.Fatalf("ValidateAndApply: %v", err)
	}
	if len(res.Journals) != 0 {
		t.Errorf("journals = %+v, want none", res.Journals)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.notifier.sent))
	}
	if got := f.load(t, issue.ID).Description; got != "line one\nline two" {
		t.Errorf("Description = %q, want stored text kept", got)
	}
}

func TestMoveMapsCategoryAndVersion(t *testing.T) {
	tests := []struct {
		name         string
		category     int
		version      int
		wantCategory *int
		wantVersion  *int
	}{
		{"same-named category", catAlphaUI, versionOpen, intPtr(catBetaUI), nil},
		{"no matching category", catAlphaDB, versionOpen, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			issue := f.bug(t, "moving", func(i *model.Issue) {
				i.CategoryID = intPtr(tt.category)
				i.FixedVersionID = intPtr(tt.version)
			})

			res, err := f.engine.Move(context.Background(), f.actor, issue, projBeta, 0, MoveOptions{})
			if err != nil {
				t.Fatalf("Move: %v", err)
			}
			got := res.Issue
			if got.ProjectID != projBeta {
				t.Errorf("ProjectID = %d, want %d", got.ProjectID, projBeta)
			}
			if diff := cmp.Diff(tt.wantCategory, got.CategoryID); diff != "" {
				t.Errorf("CategoryID mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantVersion, got.FixedVersionID); diff != "" {
				t.Errorf("FixedVersionID mismatch (-want +got):\n%s", diff)
			}
			if cs := f.store.saves[len(f.store.saves)-1]; !cs.MoveTimeEntries {
				t.Error("MoveTimeEntries = false, want true")
			}
		})
	}
}

func TestMoveDisabledType(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "feature", func(i *model.Issue) { i.TypeID = typeFeature })

	_, err := f.engine.Move(context.Background(), f.actor, issue, projBeta, 0, MoveOptions{})
	if !errors.Is(err, model.ErrDisabledType) {
		t.Errorf("err = %v, want ErrDisabledType", err)
	}
}

func TestMoveDropsRelationsOutsideTarget(t *testing.T) {
	f := newFixture(t)
	a := f.bug(t, "moving")
	sameProject := f.bug(t, "stays in alpha")
	target := f.bug(t, "already in beta", func(i *model.Issue) { i.ProjectID = projBeta })
	dropped := f.store.relate(a.ID, sameProject.ID, model.RelationRelates)
	kept := f.store.relate(a.ID, target.ID, model.RelationRelates)

	if _, err := f.engine.Move(context.Background(), f.actor, a, projBeta, 0, MoveOptions{}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if diff := cmp.Diff([]model.Relation{kept}, f.store.relations); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}
	if cs := f.store.saves[0]; len(cs.RemovedRelations) != 1 || cs.RemovedRelations[0] != dropped.ID {
		t.Errorf("RemovedRelations = %v, want [%d]", cs.RemovedRelations, dropped.ID)
	}
}

func TestCopyLeavesOriginal(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "copied", func(i *model.Issue) {
		i.WatcherIDs = []int{userCarol}
		i.CategoryID = intPtr(catAlphaUI)
	})

	res, err := f.engine.Move(context.Background(), f.actor, issue, projBeta, 0, MoveOptions{
		Copy:       true,
		Attributes: Attributes{AttrSubject: "copied to beta", AttrProject: projAlpha},
	})
	if err != nil {
		t.Fatalf("Move copy: %v", err)
	}
	cp := res.Issue
	if cp.ID == issue.ID {
		t.Fatal("copy reused the original ID")
	}
	if cp.ProjectID != projBeta || cp.Subject != "copied to beta" {
		t.Errorf("copy = project %d %q, want project %d %q", cp.ProjectID, cp.Subject, projBeta, "copied to beta")
	}
	if len(cp.WatcherIDs) != 0 {
		t.Errorf("copy WatcherIDs = %v, want none", cp.WatcherIDs)
	}
	if diff := cmp.Diff(intPtr(catBetaUI), cp.CategoryID); diff != "" {
		t.Errorf("copy CategoryID mismatch (-want +got):\n%s", diff)
	}
	if f.store.saves[0].MoveTimeEntries {
		t.Error("copy moved time entries")
	}

	orig := f.load(t, issue.ID)
	if orig.ProjectID != projAlpha || orig.Subject != "copied" {
		t.Errorf("original = project %d %q, want unchanged", orig.ProjectID, orig.Subject)
	}
}

func TestDoneRatioFromStatus(t *testing.T) {
	f := newFixture(t, fieldSettings(func(s *config.Settings) { s.DoneRatio = config.DoneRatioStatus }))
	issue := f.bug(t, "progress")

	res, err := f.engine.ValidateAndApply(context.Background(), f.actor, issue, Attributes{
		AttrStatus:    statusProgress,
		AttrDoneRatio: 10,
	})
	if err != nil {
		t.Fatalf("ValidateAndApply: %v", err)
	}
	if res.Issue.DoneRatio != 50 {
		t.Errorf("DoneRatio = %d, want 50", res.Issue.DoneRatio)
	}
}

func TestDoneRatioRange(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "progress")

	res, err := f.engine.ValidateAndApply(context.Background(), f.actor, issue, Attributes{AttrDoneRatio: 120})
	if err == nil || !hasError(res.Errors, AttrDoneRatio, model.ErrInvalidValue) {
		t.Errorf("err = %v, want InvalidValue on done_ratio", err)
	}
}

func TestUpdateNotifiesWatchersSeparately(t *testing.T) {
	f := newFixture(t)
	issue := f.bug(t, "watched", func(i *model.Issue) { i.WatcherIDs = []int{userAlice, userCarol} })

	res, err := f.engine.ValidateAndApply(context.Background(), f.actor, issue, Attributes{
		AttrSubject: "watched closely",
		AttrNotes:   "renamed",
	})
	if err != nil {
		t.Fatalf("ValidateAndApply: %v", err)
	}
	if diff := cmp.Diff([]string{"alice@example.com"}, res.Recipients); diff != "" {
		t.Errorf("Recipients mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"carol@example.com"}, res.Watchers); diff != "" {
		t.Errorf("Watchers mismatch (-want +got):\n%s", diff)
	}
	want := map[string]model.Change{AttrSubject: {Old: "watched", New: "watched closely"}}
	if diff := cmp.Diff(want, f.notifier.sent[0].Journal.Details); diff != "" {
		t.Errorf("journal details mismatch (-want +got):\n%s", diff)
	}
}

func TestNotificationsDisabled(t *testing.T) {
	f := newFixture(t, fieldSettings(func(s *config.Settings) { s.SendNotifications = false }))
	issue := f.bug(t, "quiet")

	if _, err := f.engine.ValidateAndApply(context.Background(), f.actor, issue, Attributes{AttrSubject: "still quiet"}); err != nil {
		t.Fatalf("ValidateAndApply: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("notifications = %d, want 0", len(f.notifier.sent))
	}
}

func TestDestroy(t *testing.T) {
	f := newFixture(t)
	a := f.bug(t, "doomed")
	b := f.bug(t, "survivor")
	c := f.bug(t, "other")
	f.store.relate(a.ID, b.ID, model.RelationRelates)
	kept := f.store.relate(b.ID, c.ID, model.RelationBlocks)

	if _, err := f.engine.Destroy(context.Background(), f.actor, a); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := f.store.LoadIssue(context.Background(), a.ID); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("LoadIssue after Destroy: err = %v, want ErrNotFound", err)
	}
	if diff := cmp.Diff([]model.Relation{kept}, f.store.relations); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}
}

func TestIsRecipient(t *testing.T) {
	issue := &model.Issue{AuthorID: 1, AssignedToID: intPtr(2)}
	user := func(id int, policy model.NotificationPolicy) *model.User {
		return &model.User{ID: id, Mail: "u@example.com", Active: true, Notification: policy}
	}

	tests := []struct {
		name string
		user *model.User
		role Role
		want bool
	}{
		{"member with all", user(3, model.NotifyAll), RoleMember, true},
		{"member with only_assigned", user(3, model.NotifyOnlyAssigned), RoleMember, false},
		{"empty policy counts as all", user(3, ""), RoleMember, true},
		{"assignee with only_assigned", user(2, model.NotifyOnlyAssigned), RoleAssignee, true},
		{"author with only_assigned", user(1, model.NotifyOnlyAssigned), RoleAuthor, false},
		{"author with only_owner", user(1, model.NotifyOnlyOwner), RoleAuthor, true},
		{"assignee with only_owner", user(2, model.NotifyOnlyOwner), RoleAssignee, false},
		{"author with none", user(1, model.NotifyNone), RoleAuthor, false},
		{"watcher with only_owner", user(5, model.NotifyOnlyOwner), RoleWatcher, true},
		{"watcher with none", user(5, model.NotifyNone), RoleWatcher, false},
		{"inactive", &model.User{ID: 1, Mail: "u@example.com", Notification: model.NotifyAll}, RoleAuthor, false},
		{"no mail", &model.User{ID: 1, Active: true, Notification: model.NotifyAll}, RoleAuthor, false},
		{"nil user", nil, RoleAuthor, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecipient(tt.user, issue, tt.role); got != tt.want {
				t.Errorf("IsRecipient = %v, want %v", got, tt.want)
			}
		})
	}
}

type denyUser struct{ id int }

func (d denyUser) CanView(_ context.Context, u *model.User, _ *model.Issue) bool { return u.ID != d.id }

func TestRecipientsRespectVisibility(t *testing.T) {
	f := newFixture(t, WithPermissions(denyUser{id: userBob}))
	issue := f.bug(t, "private", func(i *model.Issue) { i.AssignedToID = intPtr(userBob) })

	got, err := f.engine.Recipients(context.Background(), issue)
	if err != nil {
		t.Fatalf("Recipients: %v", err)
	}
	if diff := cmp.Diff([]string{"alice@example.com"}, got); diff != "" {
		t.Errorf("Recipients mismatch (-want +got):\n%s", diff)
	}
}

func TestAssignableVersions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Issue)
		want   []int
	}{
		{"open versions of the project", nil, []int{versionOpen, versionAlphaShared}},
		{"shared from the parent", func(i *model.Issue) { i.ProjectID = projChild }, []int{versionAlphaShared}},
		{"keeps the current closed version", func(i *model.Issue) { i.FixedVersionID = intPtr(versionClosed) },
			[]int{versionClosed, versionOpen, versionAlphaShared}},
		{"other project", func(i *model.Issue) { i.ProjectID = projBeta }, []int{versionBeta}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutate []func(*model.Issue)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			issue := f.bug(t, "versioned", mutate...)

			versions, err := f.engine.AssignableVersions(context.Background(), issue)
			if err != nil {
				t.Fatalf("AssignableVersions: %v", err)
			}
			got := make([]int, 0, len(versions))
			for _, v := range versions {
				got = append(got, v.ID)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AssignableVersions mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAssignableUsers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Issue)
		want   []string
	}{
		// alice is both author and member and appears once; dave is inactive.
		{"author among members", nil, []string{"alice", "bob", "carol"}},
		{"author outside the project", func(i *model.Issue) {
			i.ProjectID = projBeta
			i.AuthorID = userCarol
		}, []string{"carol"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var mutate []func(*model.Issue)
			if tt.mutate != nil {
				mutate = append(mutate, tt.mutate)
			}
			issue := f.bug(t, "assigned", mutate...)

			users, err := f.engine.AssignableUsers(context.Background(), issue)
			if err != nil {
				t.Fatalf("AssignableUsers: %v", err)
			}
			got := make([]string, 0, len(users))
			for _, u := range users {
				got = append(got, u.Login)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("AssignableUsers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestJournalDiff(t *testing.T) {
	before := &model.Issue{Subject: "a", Description: "x\r\ny", CustomValues: map[int]string{1: "low"}}
	after := &model.Issue{Subject: "b", Description: "x\ny", AssignedToID: intPtr(4), CustomValues: map[int]string{1: "high"}}

	want := map[string]model.Change{
		AttrSubject:             {Old: "a", New: "b"},
		AttrAssignedTo:          {Old: "", New: "4"},
		model.CustomFieldKey(1): {Old: "low", New: "high"},
	}
	if diff := cmp.Diff(want, Journal(before, after)); diff != "" {
		t.Errorf("Journal mismatch (-want +got):\n%s", diff)
	}
}

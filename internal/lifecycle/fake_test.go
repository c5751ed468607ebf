package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// memStore is an in-memory Store with lock version checks.
type memStore struct {
	issues    map[int]*model.Issue
	relations []model.Relation
	journals  []*model.Journal
	saves     []*ChangeSet
	nextIssue int
	nextRel   int
	// bumpBeforeSave simulates a concurrent writer touching this issue
	// between load and save.
	bumpBeforeSave int
}

func newMemStore() *memStore {
	return &memStore{issues: make(map[int]*model.Issue), nextIssue: 1, nextRel: 1}
}

func (s *memStore) put(issue *model.Issue) *model.Issue {
	if issue.ID == 0 {
		issue.ID = s.nextIssue
	}
	if issue.ID >= s.nextIssue {
		s.nextIssue = issue.ID + 1
	}
	if issue.CustomValues == nil {
		issue.CustomValues = make(map[int]string)
	}
	s.issues[issue.ID] = issue.Clone()
	return issue
}

func (s *memStore) relate(from, to int, kind model.RelationKind) model.Relation {
	r := model.Relation{ID: s.nextRel, FromID: from, ToID: to, Kind: kind}.Normalize()
	s.nextRel++
	s.relations = append(s.relations, r)
	return r
}

func (s *memStore) LoadIssue(_ context.Context, id int) (*model.Issue, error) {
	issue, ok := s.issues[id]
	if !ok {
		return nil, fmt.Errorf("issue %d: %w", id, model.ErrNotFound)
	}
	return issue.Clone(), nil
}

func (s *memStore) LoadRelationsFor(_ context.Context, issueID int) ([]model.Relation, error) {
	var out []model.Relation
	for _, r := range s.relations {
		if r.FromID == issueID || r.ToID == issueID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) Save(_ context.Context, cs *ChangeSet) error {
	if s.bumpBeforeSave != 0 {
		s.issues[s.bumpBeforeSave].LockVersion++
	}

	var all []*model.Issue
	if cs.Issue != nil {
		all = append(all, cs.Issue)
	}
	all = append(all, cs.Derived...)
	for _, issue := range all {
		if issue.IsNew() {
			continue
		}
		stored, ok := s.issues[issue.ID]
		if !ok {
			return fmt.Errorf("issue %d: %w", issue.ID, model.ErrNotFound)
		}
		if stored.LockVersion != issue.LockVersion {
			return fmt.Errorf("issue %d: %w", issue.ID, model.ErrStaleWrite)
		}
	}

	s.saves = append(s.saves, cs)
	if cs.Destroy {
		delete(s.issues, cs.Issue.ID)
	} else {
		for _, issue := range all {
			if !issue.IsNew() {
				issue.LockVersion++
			}
			s.put(issue)
		}
	}
	removed := make(map[int]bool)
	for _, id := range cs.RemovedRelations {
		removed[id] = true
	}
	kept := s.relations[:0]
	for _, r := range s.relations {
		if !removed[r.ID] {
			kept = append(kept, r)
		}
	}
	s.relations = kept
	for _, rel := range cs.AddedRelations {
		rel.ID = s.nextRel
		s.nextRel++
		s.relations = append(s.relations, *rel)
	}
	s.journals = append(s.journals, cs.Journals...)
	return nil
}

// memCatalog is an in-memory Catalog.
type memCatalog struct {
	projects   model.Hierarchy
	types      map[int]*model.Type
	statuses   []model.IssueStatus
	versions   map[int]*model.Version
	categories map[int]*model.Category
	fields     []model.CustomField
	users      map[int]*model.User
	members    []model.Member
}

func notFound(what string, id int) error {
	return fmt.Errorf("%s %d: %w", what, id, model.ErrNotFound)
}

func (c *memCatalog) Project(_ context.Context, id int) (*model.Project, error) {
	if p, ok := c.projects[id]; ok {
		return p, nil
	}
	return nil, notFound("project", id)
}

func (c *memCatalog) Projects(context.Context) (model.Hierarchy, error) { return c.projects, nil }

func (c *memCatalog) Type(_ context.Context, id int) (*model.Type, error) {
	if t, ok := c.types[id]; ok {
		return t, nil
	}
	return nil, notFound("type", id)
}

func (c *memCatalog) Status(_ context.Context, id int) (*model.IssueStatus, error) {
	for i := range c.statuses {
		if c.statuses[i].ID == id {
			return &c.statuses[i], nil
		}
	}
	return nil, notFound("status", id)
}

func (c *memCatalog) Statuses(context.Context) ([]model.IssueStatus, error) { return c.statuses, nil }

func (c *memCatalog) Version(_ context.Context, id int) (*model.Version, error) {
	if v, ok := c.versions[id]; ok {
		return v, nil
	}
	return nil, notFound("version", id)
}

func (c *memCatalog) Versions(context.Context) ([]model.Version, error) {
	out := make([]model.Version, 0, len(c.versions))
	for _, v := range c.versions {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memCatalog) Category(_ context.Context, id int) (*model.Category, error) {
	if cat, ok := c.categories[id]; ok {
		return cat, nil
	}
	return nil, notFound("category", id)
}

func (c *memCatalog) CategoriesFor(_ context.Context, projectID int) ([]model.Category, error) {
	var out []model.Category
	for _, cat := range c.categories {
		if cat.ProjectID == projectID {
			out = append(out, *cat)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *memCatalog) CustomFields(context.Context) ([]model.CustomField, error) { return c.fields, nil }

func (c *memCatalog) User(_ context.Context, id int) (*model.User, error) {
	if u, ok := c.users[id]; ok {
		return u, nil
	}
	return nil, notFound("user", id)
}

func (c *memCatalog) ProjectMembers(_ context.Context, projectID int) ([]model.Member, error) {
	var out []model.Member
	for _, m := range c.members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

// memNotifier records notifications.
type memNotifier struct {
	sent []Notification
}

func (n *memNotifier) Notify(_ context.Context, note Notification) error {
	n.sent = append(n.sent, note)
	return nil
}

const (
	projAlpha = 1
	projBeta  = 2
	projChild = 3

	typeBug     = 1
	typeFeature = 2
	typeSupport = 3

	statusNew      = 1
	statusProgress = 2
	statusClosed   = 3
	statusRejected = 4

	userAlice = 1
	userBob   = 2
	userCarol = 3
	userDave  = 4

	fieldSeverity = 1
	fieldTicket   = 2

	catAlphaUI = 1
	catBetaUI  = 2
	catAlphaDB = 3

	versionOpen        = 1
	versionLocked      = 2
	versionClosed      = 3
	versionBeta        = 4
	versionAlphaShared = 5
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func intPtr(n int) *int { return &n }

func mustDate(t *testing.T, s string) *time.Time {
	t.Helper()
	d, err := model.ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", s, err)
	}
	return &d
}

func newTestCatalog() *memCatalog {
	ratio := func(n int) *int { return &n }
	return &memCatalog{
		projects: model.Hierarchy{
			projAlpha: {ID: projAlpha, Name: "Alpha", Identifier: "alpha", TypeIDs: []int{typeBug, typeFeature}, CustomFieldIDs: []int{fieldTicket}},
			projBeta:  {ID: projBeta, Name: "Beta", Identifier: "beta", TypeIDs: []int{typeBug, typeSupport}},
			projChild: {ID: projChild, Name: "Alpha child", Identifier: "alpha-child", ParentID: intPtr(projAlpha), TypeIDs: []int{typeBug, typeFeature}},
		},
		types: map[int]*model.Type{
			typeBug:     {ID: typeBug, Name: "Bug", CustomFieldIDs: []int{fieldSeverity}},
			typeFeature: {ID: typeFeature, Name: "Feature", CustomFieldIDs: []int{fieldTicket}},
			typeSupport: {ID: typeSupport, Name: "Support"},
		},
		statuses: []model.IssueStatus{
			{ID: statusNew, Name: "New", IsDefault: true, DefaultDoneRatio: ratio(0), Position: 1},
			{ID: statusProgress, Name: "In Progress", DefaultDoneRatio: ratio(50), Position: 2},
			{ID: statusClosed, Name: "Closed", IsClosed: true, DefaultDoneRatio: ratio(100), Position: 3},
			{ID: statusRejected, Name: "Rejected", IsClosed: true, Position: 4},
		},
		versions: map[int]*model.Version{
			versionOpen:        {ID: versionOpen, ProjectID: projAlpha, Name: "1.0", Status: model.VersionOpen, Sharing: model.SharingNone},
			versionLocked:      {ID: versionLocked, ProjectID: projAlpha, Name: "0.9", Status: model.VersionLocked, Sharing: model.SharingNone},
			versionClosed:      {ID: versionClosed, ProjectID: projAlpha, Name: "0.8", Status: model.VersionClosed, Sharing: model.SharingNone},
			versionBeta:        {ID: versionBeta, ProjectID: projBeta, Name: "beta-1", Status: model.VersionOpen, Sharing: model.SharingNone},
			versionAlphaShared: {ID: versionAlphaShared, ProjectID: projAlpha, Name: "2.0", Status: model.VersionOpen, Sharing: model.SharingDescendants},
		},
		categories: map[int]*model.Category{
			catAlphaUI: {ID: catAlphaUI, ProjectID: projAlpha, Name: "UI", AssignedToID: intPtr(userBob)},
			catBetaUI:  {ID: catBetaUI, ProjectID: projBeta, Name: "UI"},
			catAlphaDB: {ID: catAlphaDB, ProjectID: projAlpha, Name: "Database"},
		},
		fields: []model.CustomField{
			{ID: fieldSeverity, Name: "Severity", Format: model.FormatList, IsRequired: true, IsForAll: true, PossibleValues: []string{"low", "high"}, DefaultValue: "low"},
			{ID: fieldTicket, Name: "Ticket", Format: model.FormatInt, IsRequired: true},
		},
		users: map[int]*model.User{
			userAlice: {ID: userAlice, Login: "alice", Mail: "alice@example.com", Active: true, Notification: model.NotifyAll},
			userBob:   {ID: userBob, Login: "bob", Mail: "bob@example.com", Active: true, Notification: model.NotifyOnlyAssigned},
			userCarol: {ID: userCarol, Login: "carol", Mail: "carol@example.com", Active: true, Notification: model.NotifyOnlyOwner},
			userDave:  {ID: userDave, Login: "dave", Mail: "dave@example.com", Active: false, Notification: model.NotifyAll},
		},
		members: []model.Member{
			{UserID: userAlice, ProjectID: projAlpha, CanView: true},
			{UserID: userBob, ProjectID: projAlpha, CanView: true},
			{UserID: userCarol, ProjectID: projAlpha, CanView: true},
			{UserID: userDave, ProjectID: projAlpha, CanView: true},
		},
	}
}

type fixture struct {
	store    *memStore
	catalog  *memCatalog
	notifier *memNotifier
	engine   *Lifecycle
	actor    *model.User
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		catalog:  newTestCatalog(),
		notifier: &memNotifier{},
	}
	f.actor = f.catalog.users[userAlice]
	seq := 0
	base := []Option{
		WithNotifier(f.notifier),
		WithClock(func() time.Time { return testNow }),
	}
	f.engine = New(f.store, f.catalog, append(base, opts...)...)
	f.engine.newID = func() string {
		seq++
		return fmt.Sprintf("cs-%d", seq)
	}
	return f
}

// bug stores an open bug in project Alpha and returns a copy of it.
func (f *fixture) bug(t *testing.T, subject string, mutate ...func(*model.Issue)) *model.Issue {
	t.Helper()
	issue := &model.Issue{
		ProjectID:    projAlpha,
		TypeID:       typeBug,
		StatusID:     statusNew,
		AuthorID:     userAlice,
		Subject:      subject,
		CustomValues: map[int]string{fieldSeverity: "low"},
	}
	for _, m := range mutate {
		m(issue)
	}
	f.store.put(issue)
	return issue.Clone()
}

func (f *fixture) load(t *testing.T, id int) *model.Issue {
	t.Helper()
	issue, err := f.store.LoadIssue(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadIssue(%d): %v", id, err)
	}
	return issue
}

func fieldSettings(mutate func(*config.Settings)) Option {
	s := config.DefaultSettings()
	mutate(&s)
	return WithSettings(s)
}

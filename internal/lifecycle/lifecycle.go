// Package lifecycle orchestrates issue mutations: attribute assignment and
// validation, moving and copying between projects, relation creation, and
// the derived work that follows a save (rescheduling successors, closing
// duplicates, notifying recipients).
//
// Every operation works on a clone of the issue it is given. Nothing is
// persisted unless validation succeeds, and everything an operation changes
// is handed to the Store as one ChangeSet, so a stale write leaves no
// partial state behind and triggers no notification.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ALT-F4-LLC/workgraph/internal/config"
	"github.com/ALT-F4-LLC/workgraph/internal/customfield"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
	"github.com/ALT-F4-LLC/workgraph/internal/telemetry"
)

// Store persists issues and relations.
type Store interface {
	LoadIssue(ctx context.Context, id int) (*model.Issue, error)
	// LoadRelationsFor returns every relation touching issueID, in either
	// direction.
	LoadRelationsFor(ctx context.Context, issueID int) ([]model.Relation, error)
	// Save applies cs atomically. It returns an error wrapping
	// model.ErrStaleWrite when the lock version of any issue in cs no longer
	// matches, in which case nothing is written. On success it assigns IDs
	// to new records and bumps the lock version of every saved issue.
	Save(ctx context.Context, cs *ChangeSet) error
}

// Catalog resolves reference data. Lookups of missing records return an
// error wrapping model.ErrNotFound.
type Catalog interface {
	Project(ctx context.Context, id int) (*model.Project, error)
	Projects(ctx context.Context) (model.Hierarchy, error)
	Type(ctx context.Context, id int) (*model.Type, error)
	Status(ctx context.Context, id int) (*model.IssueStatus, error)
	Statuses(ctx context.Context) ([]model.IssueStatus, error)
	Version(ctx context.Context, id int) (*model.Version, error)
	Versions(ctx context.Context) ([]model.Version, error)
	Category(ctx context.Context, id int) (*model.Category, error)
	CategoriesFor(ctx context.Context, projectID int) ([]model.Category, error)
	CustomFields(ctx context.Context) ([]model.CustomField, error)
	User(ctx context.Context, id int) (*model.User, error)
	ProjectMembers(ctx context.Context, projectID int) ([]model.Member, error)
}

// Permissions answers visibility questions.
type Permissions interface {
	CanView(ctx context.Context, user *model.User, issue *model.Issue) bool
}

// Notifier delivers notifications. The engine decides whom to notify; the
// Notifier only sends.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Event is the kind of change a notification reports.
type Event string

const (
	EventIssueAdded   Event = "issue_added"
	EventIssueUpdated Event = "issue_updated"
)

// Notification is one message about one issue. Recipients are the primary
// addresses; Watchers are copied and never repeat a recipient.
type Notification struct {
	Event      Event          `json:"event"`
	Issue      *model.Issue   `json:"issue"`
	Journal    *model.Journal `json:"journal,omitempty"`
	Recipients []string       `json:"recipients"`
	Watchers   []string       `json:"watchers,omitempty"`
}

// ChangeSet is everything one operation writes. Issue is the triggering
// issue (nil for relation-only operations, new when its ID is zero); Derived
// holds the issues moved by the scheduler or closed by a cascade.
type ChangeSet struct {
	ID               string
	Issue            *model.Issue
	Derived          []*model.Issue
	Journals         []*model.Journal
	AddedRelations   []*model.Relation
	RemovedRelations []int
	// MoveTimeEntries reassigns the time entries of Issue to its project.
	MoveTimeEntries bool
	// Destroy deletes Issue with its relations and custom values, and nulls
	// the issue reference of its time entries.
	Destroy bool
}

// Result reports the outcome of an operation. Errors is non-empty when
// validation failed, and then nothing was saved.
type Result struct {
	Issue       *model.Issue
	Relation    *model.Relation // set by Relate
	Errors      *model.Errors
	Rescheduled []*model.Issue
	Cascaded    []*model.Issue
	Journals    []*model.Journal
	Recipients  []string
	Watchers    []string
}

// Mutated returns the derived issues changed alongside Result.Issue, sorted
// by ID without repeats.
func (r *Result) Mutated() []*model.Issue {
	return mergeByID(r.Rescheduled, r.Cascaded)
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithPermissions sets the visibility check used for recipients and allowed
// statuses. Without it every user can view every issue.
func WithPermissions(p Permissions) Option {
	return func(l *Lifecycle) { l.perms = p }
}

// WithNotifier sets the notification sink. Without it nothing is sent.
func WithNotifier(n Notifier) Option {
	return func(l *Lifecycle) { l.notifier = n }
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lifecycle) { l.logger = logger }
}

// WithSettings overrides config.DefaultSettings.
func WithSettings(s config.Settings) Option {
	return func(l *Lifecycle) { l.settings = s }
}

// WithClock sets the time source for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// Lifecycle runs issue operations against a Store and a Catalog. It is not
// safe for concurrent use.
type Lifecycle struct {
	store     Store
	catalog   Catalog
	perms     Permissions
	notifier  Notifier
	logger    *slog.Logger
	settings  config.Settings
	now       func() time.Time
	newID     func() string
	validator *customfield.Validator
	tel       *telemetry.Engine
}

// New returns a Lifecycle.
func New(store Store, catalog Catalog, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:     store,
		catalog:   catalog,
		logger:    slog.New(slog.DiscardHandler),
		settings:  config.DefaultSettings(),
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
		validator: customfield.NewValidator(),
		tel:       telemetry.NewEngine(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Settings returns the settings the lifecycle runs with.
func (l *Lifecycle) Settings() config.Settings {
	return l.settings
}

func (l *Lifecycle) canView(ctx context.Context, user *model.User, issue *model.Issue) bool {
	if l.perms == nil {
		return true
	}
	return l.perms.CanView(ctx, user, issue)
}

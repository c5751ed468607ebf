package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/ALT-F4-LLC/workgraph/internal/graph"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Role is the capacity in which a user is considered for a notification.
type Role string

const (
	RoleMember   Role = "member"
	RoleAuthor   Role = "author"
	RoleAssignee Role = "assignee"
	RoleWatcher  Role = "watcher"
)

// IsRecipient reports whether user's notification policy accepts mail about
// issue when reached through role. Inactive users never receive mail.
// Project members receive mail only under the "all" policy; watchers under
// any policy but "none"; authors and assignees according to their policy,
// where only_assigned and only_owner restrict to the matching relationship.
func IsRecipient(user *model.User, issue *model.Issue, role Role) bool {
	if user == nil || !user.Active || user.Mail == "" {
		return false
	}
	policy := user.Notification
	if policy == "" {
		policy = model.NotifyAll
	}

	switch role {
	case RoleMember:
		return policy == model.NotifyAll
	case RoleWatcher:
		return policy != model.NotifyNone
	}

	switch policy {
	case model.NotifyAll:
		return true
	case model.NotifyOnlyAssigned:
		return issue.IsAssignedTo(user.ID)
	case model.NotifyOnlyOwner:
		return issue.AuthorID == user.ID
	default:
		return false
	}
}

// Recipients returns the sorted mail addresses notified about issue: project
// members, the author and the assignee, each filtered by IsRecipient and by
// visibility of the issue.
func (l *Lifecycle) Recipients(ctx context.Context, issue *model.Issue) ([]string, error) {
	members, err := l.catalog.ProjectMembers(ctx, issue.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("loading members of project %d: %w", issue.ProjectID, err)
	}

	type candidate struct {
		id   int
		role Role
	}
	var candidates []candidate
	candidates = append(candidates, candidate{issue.AuthorID, RoleAuthor})
	if issue.AssignedToID != nil {
		candidates = append(candidates, candidate{*issue.AssignedToID, RoleAssignee})
	}
	for _, m := range members {
		candidates = append(candidates, candidate{m.UserID, RoleMember})
	}

	seen := make(map[string]bool)
	var out []string
	for _, c := range candidates {
		user, err := l.catalog.User(ctx, c.id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if seen[user.Mail] || !IsRecipient(user, issue, c.role) || !l.canView(ctx, user, issue) {
			continue
		}
		seen[user.Mail] = true
		out = append(out, user.Mail)
	}
	sort.Strings(out)
	return out, nil
}

// WatcherRecipients returns the sorted mail addresses of active watchers who
// can view issue and have not opted out of all mail.
func (l *Lifecycle) WatcherRecipients(ctx context.Context, issue *model.Issue) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	for _, id := range issue.WatcherIDs {
		user, err := l.catalog.User(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if seen[user.Mail] || !IsRecipient(user, issue, RoleWatcher) || !l.canView(ctx, user, issue) {
			continue
		}
		seen[user.Mail] = true
		out = append(out, user.Mail)
	}
	sort.Strings(out)
	return out, nil
}

// AllowedStatuses returns the statuses issue may move to, ordered by
// position. Closed statuses are left out while an open issue blocks it,
// unless the issue is already in that status.
func (l *Lifecycle) AllowedStatuses(ctx context.Context, issue *model.Issue) ([]model.IssueStatus, error) {
	statuses, err := l.catalog.Statuses(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading statuses: %w", err)
	}
	byID := make(map[int]model.IssueStatus, len(statuses))
	for _, s := range statuses {
		byID[s.ID] = s
	}

	blocked := false
	if !issue.IsNew() {
		rels, err := l.store.LoadRelationsFor(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("loading relations of %s: %w", model.FormatID(issue.ID), err)
		}
		var lookupErr error
		blocked = graph.New(rels).Blocked(issue.ID, func(id int) bool {
			other, err := l.store.LoadIssue(ctx, id)
			if err != nil {
				if lookupErr == nil && !isNotFound(err) {
					lookupErr = err
				}
				return true
			}
			return byID[other.StatusID].IsClosed
		})
		if lookupErr != nil {
			return nil, lookupErr
		}
	}

	var out []model.IssueStatus
	for _, s := range statuses {
		if blocked && s.IsClosed && s.ID != issue.StatusID {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// notify sends one notification when enabled. Delivery failures are logged;
// the change is already saved.
func (l *Lifecycle) notify(ctx context.Context, event Event, issue *model.Issue, journal *model.Journal) (recipients, watchers []string) {
	if event == EventIssueUpdated && (journal == nil || journal.Empty()) {
		return nil, nil
	}

	recipients, err := l.Recipients(ctx, issue)
	if err != nil {
		l.logger.Error("computing recipients", "issue", model.FormatID(issue.ID), "err", err)
		return nil, nil
	}
	cc, err := l.WatcherRecipients(ctx, issue)
	if err != nil {
		l.logger.Error("computing watcher recipients", "issue", model.FormatID(issue.ID), "err", err)
	}
	primary := make(map[string]bool, len(recipients))
	for _, r := range recipients {
		primary[r] = true
	}
	for _, w := range cc {
		if !primary[w] {
			watchers = append(watchers, w)
		}
	}

	if !l.settings.SendNotifications || l.notifier == nil || (len(recipients) == 0 && len(watchers) == 0) {
		return recipients, watchers
	}

	n := Notification{Event: event, Issue: issue, Journal: journal, Recipients: recipients, Watchers: watchers}
	if err := l.notifier.Notify(ctx, n); err != nil {
		l.logger.Warn("notification failed", "issue", model.FormatID(issue.ID), "event", event, "err", err)
	} else {
		l.logger.Debug("notification sent", "issue", model.FormatID(issue.ID), "event", event, "recipients", len(recipients))
	}
	return recipients, watchers
}

// AssignableVersions returns the versions issue may be assigned to: the open
// versions shared with its project, plus its current version whatever its
// status. They are ordered by name, then ID.
func (l *Lifecycle) AssignableVersions(ctx context.Context, issue *model.Issue) ([]model.Version, error) {
	versions, err := l.catalog.Versions(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading versions: %w", err)
	}
	projects, err := l.catalog.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading projects: %w", err)
	}

	var out []model.Version
	for _, v := range versions {
		current := issue.FixedVersionID != nil && *issue.FixedVersionID == v.ID
		if current || (v.IsOpen() && projects.SharedWith(&v, issue.ProjectID)) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// AssignableUsers returns the active users issue may be assigned to: the
// members of its project and its author, each once, ordered by login.
func (l *Lifecycle) AssignableUsers(ctx context.Context, issue *model.Issue) ([]model.User, error) {
	members, err := l.catalog.ProjectMembers(ctx, issue.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("loading members of project %d: %w", issue.ProjectID, err)
	}
	ids := make([]int, 0, len(members)+1)
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	if issue.AuthorID != 0 {
		ids = append(ids, issue.AuthorID)
	}

	seen := make(map[int]bool, len(ids))
	var out []model.User
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		user, err := l.catalog.User(ctx, id)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, err
		}
		if user.Active {
			out = append(out, *user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Login < out[j].Login })
	return out, nil
}

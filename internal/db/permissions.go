package db

import (
	"context"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// CanView reports whether user may see issue. Admins see everything, other
// active users see issues of public projects and of projects where their
// membership grants viewing. Lookup failures deny.
func (s *Store) CanView(ctx context.Context, user *model.User, issue *model.Issue) bool {
	if user == nil || !user.Active {
		return false
	}
	if user.Admin {
		return true
	}
	var visible bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM projects WHERE id = ? AND is_public = 1)
		     OR EXISTS(SELECT 1 FROM members WHERE project_id = ? AND user_id = ? AND can_view = 1)`,
		issue.ProjectID, issue.ProjectID, user.ID,
	).Scan(&visible)
	return err == nil && visible
}

package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// LogTime records hours spent on an issue against the issue's current
// project. entry.ID and entry.CreatedAt are set on success.
func (s *Store) LogTime(ctx context.Context, entry *model.TimeEntry) error {
	if entry.Hours <= 0 {
		return fmt.Errorf("logging time: hours must be positive, got %v", entry.Hours)
	}
	if entry.IssueID == nil {
		return fmt.Errorf("logging time: an issue is required")
	}
	issue, err := s.LoadIssue(ctx, *entry.IssueID)
	if err != nil {
		return err
	}
	entry.ProjectID = issue.ProjectID
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO time_entries (issue_id, project_id, user_id, hours, created_at) VALUES (?, ?, ?, ?, ?)`,
		issue.ID, entry.ProjectID, entry.UserID, entry.Hours, formatTime(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting time entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	entry.ID = int(id)
	return nil
}

// TimeEntries returns the time entries of a project ordered by ID. A
// non-zero issueID narrows them to that issue.
func (s *Store) TimeEntries(ctx context.Context, projectID, issueID int) ([]model.TimeEntry, error) {
	query := `SELECT id, issue_id, project_id, user_id, hours, created_at FROM time_entries WHERE project_id = ?`
	args := []any{projectID}
	if issueID != 0 {
		query += " AND issue_id = ?"
		args = append(args, issueID)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying time entries: %w", err)
	}
	defer rows.Close()

	var entries []model.TimeEntry
	for rows.Next() {
		var e model.TimeEntry
		var issue sql.NullInt64
		var createdAt string
		if err := rows.Scan(&e.ID, &issue, &e.ProjectID, &e.UserID, &e.Hours, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning time entry: %w", err)
		}
		e.IssueID = intPtr(issue)
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing time entry created_at: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating time entries: %w", err)
	}
	return entries, nil
}

// SpentHours sums the hours logged on an issue.
func (s *Store) SpentHours(ctx context.Context, issueID int) (float64, error) {
	var total float64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(hours), 0) FROM time_entries WHERE issue_id = ?`, issueID,
	).Scan(&total); err != nil {
		return 0, fmt.Errorf("summing spent hours: %w", err)
	}
	return total, nil
}

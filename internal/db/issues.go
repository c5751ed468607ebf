package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ALT-F4-LLC/workgraph/internal/lifecycle"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

const issueColumns = `id, project_id, type_id, status_id, author_id, assigned_to_id, category_id,
	fixed_version_id, subject, description, start_date, due_date, done_ratio, estimated_hours,
	lock_version, created_at, updated_at`

// ListOptions filters ListIssues.
type ListOptions struct {
	ProjectID int  // 0 for all projects
	StatusID  int  // 0 for any status
	OpenOnly  bool // exclude issues in a closed status
	Limit     int  // max results, 0 for no limit
}

// LoadIssue returns the issue with its custom values and watchers.
func (s *Store) LoadIssue(ctx context.Context, id int) (*model.Issue, error) {
	return loadIssue(ctx, s.db, id)
}

func loadIssue(ctx context.Context, q querier, id int) (*model.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("issue %s: %w", model.FormatID(id), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := hydrate(ctx, q, []*model.Issue{issue}); err != nil {
		return nil, err
	}
	return issue, nil
}

// ListIssues returns the issues matching opts ordered by ID.
func (s *Store) ListIssues(ctx context.Context, opts ListOptions) ([]*model.Issue, error) {
	var (
		where []string
		args  []any
	)
	if opts.ProjectID != 0 {
		where = append(where, "i.project_id = ?")
		args = append(args, opts.ProjectID)
	}
	if opts.StatusID != 0 {
		where = append(where, "i.status_id = ?")
		args = append(args, opts.StatusID)
	}
	if opts.OpenOnly {
		where = append(where, "i.status_id IN (SELECT id FROM statuses WHERE is_closed = 0)")
	}

	query := `SELECT ` + prefixed("i.", issueColumns) + ` FROM issues i`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.id"
	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying issues: %w", err)
	}
	defer rows.Close()

	var issues []*model.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issue rows: %w", err)
	}

	if err := hydrate(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

// Save applies cs in a single transaction. Every existing issue in cs must
// still carry the stored lock version, otherwise nothing is written and the
// error wraps model.ErrStaleWrite. After a successful commit new issues,
// relations and journals carry their IDs and saved issues their bumped lock
// version.
func (s *Store) Save(ctx context.Context, cs *lifecycle.ChangeSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		newIssueID int
		bumped     []*model.Issue
	)

	if cs.Destroy {
		if err := destroyIssue(ctx, tx, cs.Issue); err != nil {
			return err
		}
	} else if cs.Issue != nil {
		if cs.Issue.IsNew() {
			newIssueID, err = insertIssue(ctx, tx, cs.Issue)
			if err != nil {
				return err
			}
		} else {
			if err := updateIssue(ctx, tx, cs.Issue); err != nil {
				return err
			}
			bumped = append(bumped, cs.Issue)
			if cs.MoveTimeEntries {
				if _, err := tx.ExecContext(ctx,
					`UPDATE time_entries SET project_id = ? WHERE issue_id = ?`,
					cs.Issue.ProjectID, cs.Issue.ID,
				); err != nil {
					return fmt.Errorf("moving time entries: %w", err)
				}
			}
		}
	}

	for _, d := range cs.Derived {
		if err := updateIssue(ctx, tx, d); err != nil {
			return err
		}
		bumped = append(bumped, d)
	}

	for _, id := range cs.RemovedRelations {
		if _, err := tx.ExecContext(ctx, `DELETE FROM issue_relations WHERE id = ?`, id); err != nil {
			return fmt.Errorf("deleting relation %d: %w", id, err)
		}
	}

	relIDs := make([]int, len(cs.AddedRelations))
	for i, rel := range cs.AddedRelations {
		if relIDs[i], err = insertRelation(ctx, tx, rel); err != nil {
			return err
		}
	}

	journalIDs := make([]int, len(cs.Journals))
	for i, j := range cs.Journals {
		issueID := j.IssueID
		if issueID == 0 {
			issueID = newIssueID
		}
		if journalIDs[i], err = insertJournal(ctx, tx, issueID, j); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	if newIssueID != 0 {
		cs.Issue.ID = newIssueID
	}
	for _, issue := range bumped {
		issue.LockVersion++
	}
	for i, rel := range cs.AddedRelations {
		rel.ID = relIDs[i]
	}
	for i, j := range cs.Journals {
		j.ID = journalIDs[i]
		if j.IssueID == 0 {
			j.IssueID = newIssueID
		}
	}
	return nil
}

func insertIssue(ctx context.Context, tx *sql.Tx, issue *model.Issue) (int, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO issues (project_id, type_id, status_id, author_id, assigned_to_id, category_id,
			fixed_version_id, subject, description, start_date, due_date, done_ratio, estimated_hours,
			lock_version, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		issue.ProjectID, issue.TypeID, issue.StatusID, issue.AuthorID,
		nullInt(issue.AssignedToID), nullInt(issue.CategoryID), nullInt(issue.FixedVersionID),
		issue.Subject, issue.Description, nullDate(issue.StartDate), nullDate(issue.DueDate),
		issue.DoneRatio, nullFloat(issue.EstimatedHours),
		formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting issue: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	id := int(id64)
	if err := writeChildren(ctx, tx, id, issue); err != nil {
		return 0, err
	}
	return id, nil
}

// updateIssue writes issue if its lock version still matches the stored row.
func updateIssue(ctx context.Context, tx *sql.Tx, issue *model.Issue) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE issues SET project_id = ?, type_id = ?, status_id = ?, author_id = ?,
			assigned_to_id = ?, category_id = ?, fixed_version_id = ?, subject = ?, description = ?,
			start_date = ?, due_date = ?, done_ratio = ?, estimated_hours = ?,
			lock_version = lock_version + 1, updated_at = ?
		 WHERE id = ? AND lock_version = ?`,
		issue.ProjectID, issue.TypeID, issue.StatusID, issue.AuthorID,
		nullInt(issue.AssignedToID), nullInt(issue.CategoryID), nullInt(issue.FixedVersionID),
		issue.Subject, issue.Description, nullDate(issue.StartDate), nullDate(issue.DueDate),
		issue.DoneRatio, nullFloat(issue.EstimatedHours), formatTime(issue.UpdatedAt),
		issue.ID, issue.LockVersion,
	)
	if err != nil {
		return fmt.Errorf("updating issue %s: %w", model.FormatID(issue.ID), err)
	}
	if err := checkLocked(ctx, tx, res, issue); err != nil {
		return err
	}
	return writeChildren(ctx, tx, issue.ID, issue)
}

func destroyIssue(ctx context.Context, tx *sql.Tx, issue *model.Issue) error {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM issues WHERE id = ? AND lock_version = ?`, issue.ID, issue.LockVersion,
	)
	if err != nil {
		return fmt.Errorf("deleting issue %s: %w", model.FormatID(issue.ID), err)
	}
	return checkLocked(ctx, tx, res, issue)
}

// checkLocked turns a write that touched no row into ErrNotFound or
// model.ErrStaleWrite.
func checkLocked(ctx context.Context, tx *sql.Tx, res sql.Result, issue *model.Issue) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM issues WHERE id = ?)`, issue.ID).Scan(&exists); err != nil {
		return fmt.Errorf("checking issue existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("issue %s: %w", model.FormatID(issue.ID), ErrNotFound)
	}
	return fmt.Errorf("issue %s: %w", model.FormatID(issue.ID), model.ErrStaleWrite)
}

// writeChildren replaces the custom values and watchers of issueID.
func writeChildren(ctx context.Context, tx *sql.Tx, issueID int, issue *model.Issue) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM custom_values WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("clearing custom values: %w", err)
	}
	fieldIDs := make([]int, 0, len(issue.CustomValues))
	for id := range issue.CustomValues {
		fieldIDs = append(fieldIDs, id)
	}
	sort.Ints(fieldIDs)
	for _, id := range fieldIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO custom_values (issue_id, custom_field_id, value) VALUES (?, ?, ?)`,
			issueID, id, issue.CustomValues[id],
		); err != nil {
			return fmt.Errorf("writing custom value %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM watchers WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("clearing watchers: %w", err)
	}
	for _, userID := range issue.WatcherIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO watchers (issue_id, user_id) VALUES (?, ?)`, issueID, userID,
		); err != nil {
			return fmt.Errorf("writing watcher %d: %w", userID, err)
		}
	}
	return nil
}

func scanIssue(s scanner) (*model.Issue, error) {
	var (
		issue                       model.Issue
		assignee, category, version sql.NullInt64
		startDate, dueDate          sql.NullString
		hours                       sql.NullFloat64
		createdAt, updatedAt        string
	)
	err := s.Scan(
		&issue.ID, &issue.ProjectID, &issue.TypeID, &issue.StatusID, &issue.AuthorID,
		&assignee, &category, &version, &issue.Subject, &issue.Description,
		&startDate, &dueDate, &issue.DoneRatio, &hours, &issue.LockVersion,
		&createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning issue: %w", err)
	}

	issue.AssignedToID = intPtr(assignee)
	issue.CategoryID = intPtr(category)
	issue.FixedVersionID = intPtr(version)
	if hours.Valid {
		h := hours.Float64
		issue.EstimatedHours = &h
	}
	if issue.StartDate, err = datePtr(startDate); err != nil {
		return nil, fmt.Errorf("parsing start_date: %w", err)
	}
	if issue.DueDate, err = datePtr(dueDate); err != nil {
		return nil, fmt.Errorf("parsing due_date: %w", err)
	}
	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	issue.CustomValues = make(map[int]string)
	return &issue, nil
}

// hydrate loads custom values and watchers for issues in two queries.
func hydrate(ctx context.Context, q querier, issues []*model.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	byID := make(map[int]*model.Issue, len(issues))
	args := make([]any, len(issues))
	for i, issue := range issues {
		byID[issue.ID] = issue
		args[i] = issue.ID
	}
	in := makePlaceholders(len(issues))

	rows, err := q.QueryContext(ctx,
		`SELECT issue_id, custom_field_id, value FROM custom_values WHERE issue_id IN (`+in+`)`, args...)
	if err != nil {
		return fmt.Errorf("querying custom values: %w", err)
	}
	for rows.Next() {
		var issueID, fieldID int
		var value string
		if err := rows.Scan(&issueID, &fieldID, &value); err != nil {
			rows.Close()
			return fmt.Errorf("scanning custom value: %w", err)
		}
		byID[issueID].CustomValues[fieldID] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterating custom values: %w", err)
	}
	rows.Close()

	rows, err = q.QueryContext(ctx,
		`SELECT issue_id, user_id FROM watchers WHERE issue_id IN (`+in+`) ORDER BY issue_id, user_id`, args...)
	if err != nil {
		return fmt.Errorf("querying watchers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var issueID, userID int
		if err := rows.Scan(&issueID, &userID); err != nil {
			return fmt.Errorf("scanning watcher: %w", err)
		}
		byID[issueID].WatcherIDs = append(byID[issueID].WatcherIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating watchers: %w", err)
	}
	return nil
}

// makePlaceholders returns a comma-separated string of n "?" placeholders.
func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

func prefixed(prefix, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

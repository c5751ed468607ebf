package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// insertJournal writes j and its details for issueID and returns the new ID.
func insertJournal(ctx context.Context, tx *sql.Tx, issueID int, j *model.Journal) (int, error) {
	var userID any
	if j.UserID != 0 {
		userID = j.UserID
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO journals (issue_id, user_id, change_set_id, notes, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		issueID, userID, j.ChangeSetID, j.Notes, formatTime(j.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("recording journal: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	id := int(id64)

	fields := make([]string, 0, len(j.Details))
	for f := range j.Details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		c := j.Details[f]
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO journal_details (journal_id, field, old_value, new_value) VALUES (?, ?, ?, ?)`,
			id, f, c.Old, c.New,
		); err != nil {
			return 0, fmt.Errorf("recording journal detail %q: %w", f, err)
		}
	}
	return id, nil
}

// Journals returns the journals of an issue, most recent first. A positive
// limit caps the number returned.
func (s *Store) Journals(ctx context.Context, issueID, limit int) ([]model.Journal, error) {
	query := `SELECT id, issue_id, user_id, change_set_id, notes, created_at
	          FROM journals
	          WHERE issue_id = ?
	          ORDER BY created_at DESC, id DESC`
	args := []any{issueID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journals: %w", err)
	}
	defer rows.Close()

	var journals []model.Journal
	index := make(map[int]int)
	for rows.Next() {
		var j model.Journal
		var userID sql.NullInt64
		var createdAt string
		if err := rows.Scan(&j.ID, &j.IssueID, &userID, &j.ChangeSetID, &j.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		j.UserID = int(userID.Int64)
		if j.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing journal created_at: %w", err)
		}
		j.Details = make(map[string]model.Change)
		index[j.ID] = len(journals)
		journals = append(journals, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	rows.Close()
	if len(journals) == 0 {
		return nil, nil
	}

	args = make([]any, len(journals))
	for i, j := range journals {
		args[i] = j.ID
	}
	detailRows, err := s.db.QueryContext(ctx,
		`SELECT journal_id, field, old_value, new_value FROM journal_details
		 WHERE journal_id IN (`+makePlaceholders(len(journals))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("querying journal details: %w", err)
	}
	defer detailRows.Close()
	for detailRows.Next() {
		var journalID int
		var field string
		var oldVal, newVal sql.NullString
		if err := detailRows.Scan(&journalID, &field, &oldVal, &newVal); err != nil {
			return nil, fmt.Errorf("scanning journal detail: %w", err)
		}
		journals[index[journalID]].Details[field] = model.Change{Old: oldVal.String, New: newVal.String}
	}
	if err := detailRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal details: %w", err)
	}
	return journals, nil
}

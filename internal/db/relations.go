package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

const relationColumns = `id, from_id, to_id, kind, created_at`

// LoadRelationsFor returns every relation where issueID is either end,
// ordered by ID.
func (s *Store) LoadRelationsFor(ctx context.Context, issueID int) ([]model.Relation, error) {
	return queryRelations(ctx, s.db,
		`SELECT `+relationColumns+` FROM issue_relations WHERE from_id = ? OR to_id = ? ORDER BY id`,
		issueID, issueID,
	)
}

// AllRelations returns every stored relation ordered by ID.
func (s *Store) AllRelations(ctx context.Context) ([]model.Relation, error) {
	return queryRelations(ctx, s.db, `SELECT `+relationColumns+` FROM issue_relations ORDER BY id`)
}

// Relation returns the relation with the given ID.
func (s *Store) Relation(ctx context.Context, id int) (*model.Relation, error) {
	rels, err := queryRelations(ctx, s.db, `SELECT `+relationColumns+` FROM issue_relations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("relation %d: %w", id, ErrNotFound)
	}
	return &rels[0], nil
}

// DeleteRelation removes the relation with the given ID, journals the
// removal on both issues and returns the removed relation.
func (s *Store) DeleteRelation(ctx context.Context, id int) (*model.Relation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rels, err := queryRelations(ctx, tx, `SELECT `+relationColumns+` FROM issue_relations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(rels) == 0 {
		return nil, fmt.Errorf("relation %d: %w", id, ErrNotFound)
	}
	rel := rels[0]

	if _, err := tx.ExecContext(ctx, `DELETE FROM issue_relations WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("deleting relation: %w", err)
	}
	if err := s.journalRelation(ctx, tx, rel, true); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return &rel, nil
}

func (s *Store) journalRelation(ctx context.Context, tx *sql.Tx, rel model.Relation, removed bool) error {
	for _, j := range rel.Journals(uuid.NewString(), 0, removed, s.now()) {
		if _, err := insertJournal(ctx, tx, j.IssueID, j); err != nil {
			return err
		}
	}
	return nil
}

func insertRelation(ctx context.Context, ex execer, rel *model.Relation) (int, error) {
	res, err := ex.ExecContext(ctx,
		`INSERT INTO issue_relations (from_id, to_id, kind, created_at) VALUES (?, ?, ?, ?)`,
		rel.FromID, rel.ToID, string(rel.Kind), formatTime(rel.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting relation: %w", err)
	}
	id64, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting last insert id: %w", err)
	}
	return int(id64), nil
}

func queryRelations(ctx context.Context, q querier, query string, args ...any) ([]model.Relation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relations: %w", err)
	}
	defer rows.Close()

	var relations []model.Relation
	for rows.Next() {
		var r model.Relation
		var kind, createdAt string
		if err := rows.Scan(&r.ID, &r.FromID, &r.ToID, &kind, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning relation row: %w", err)
		}
		r.Kind = model.RelationKind(kind)
		if r.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		relations = append(relations, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating relation rows: %w", err)
	}
	return relations, nil
}

// IssueExists reports whether an issue with the given ID exists.
func (s *Store) IssueExists(ctx context.Context, issueID int) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM issues WHERE id = ?)", issueID).Scan(&exists)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("checking issue existence: %w", err)
	}
	return exists, nil
}

package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ALT-F4-LLC/workgraph/internal/catalog"
	"github.com/ALT-F4-LLC/workgraph/internal/model"
)

// Project returns the project with its enabled type and custom field IDs.
func (s *Store) Project(ctx context.Context, id int) (*model.Project, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, identifier, parent_id, is_public FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := s.projectLinks(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// ProjectByIdentifier resolves a project by its short identifier.
func (s *Store) ProjectByIdentifier(ctx context.Context, identifier string) (*model.Project, error) {
	var id int
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE identifier = ?`, identifier).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %q: %w", identifier, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving project %q: %w", identifier, err)
	}
	return s.Project(ctx, id)
}

// Projects returns every project keyed by ID.
func (s *Store) Projects(ctx context.Context) (model.Hierarchy, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, identifier, parent_id, is_public FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	h := make(model.Hierarchy)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		h[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}
	rows.Close()

	for _, p := range h {
		if err := s.projectLinks(ctx, p); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func scanProject(sc scanner) (*model.Project, error) {
	var p model.Project
	var parentID sql.NullInt64
	if err := sc.Scan(&p.ID, &p.Name, &p.Identifier, &parentID, &p.IsPublic); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning project: %w", err)
	}
	p.ParentID = intPtr(parentID)
	return &p, nil
}

func (s *Store) projectLinks(ctx context.Context, p *model.Project) error {
	var err error
	if p.TypeIDs, err = s.intColumn(ctx, `SELECT type_id FROM project_types WHERE project_id = ? ORDER BY type_id`, p.ID); err != nil {
		return err
	}
	p.CustomFieldIDs, err = s.intColumn(ctx, `SELECT custom_field_id FROM project_custom_fields WHERE project_id = ? ORDER BY custom_field_id`, p.ID)
	return err
}

// Type returns the issue type with its custom field IDs.
func (s *Store) Type(ctx context.Context, id int) (*model.Type, error) {
	var t model.Type
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM types WHERE id = ?`, id).Scan(&t.ID, &t.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("type %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying type: %w", err)
	}
	if t.CustomFieldIDs, err = s.intColumn(ctx, `SELECT custom_field_id FROM type_custom_fields WHERE type_id = ? ORDER BY custom_field_id`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

// Types returns every issue type ordered by ID.
func (s *Store) Types(ctx context.Context) ([]model.Type, error) {
	ids, err := s.intColumn(ctx, `SELECT id FROM types ORDER BY id`)
	if err != nil {
		return nil, err
	}
	types := make([]model.Type, 0, len(ids))
	for _, id := range ids {
		t, err := s.Type(ctx, id)
		if err != nil {
			return nil, err
		}
		types = append(types, *t)
	}
	return types, nil
}

const statusColumns = `id, name, is_closed, is_default, default_done_ratio, position`

// Status returns the issue status with the given ID.
func (s *Store) Status(ctx context.Context, id int) (*model.IssueStatus, error) {
	st, err := scanStatus(s.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status %d: %w", id, ErrNotFound)
	}
	return st, err
}

// StatusByName resolves a status by name, ignoring case.
func (s *Store) StatusByName(ctx context.Context, name string) (*model.IssueStatus, error) {
	st, err := scanStatus(s.db.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM statuses WHERE name = ? COLLATE NOCASE ORDER BY position, id LIMIT 1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("status %q: %w", name, ErrNotFound)
	}
	return st, err
}

// Statuses returns every status in workflow order.
func (s *Store) Statuses(ctx context.Context) ([]model.IssueStatus, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+statusColumns+` FROM statuses ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("querying statuses: %w", err)
	}
	defer rows.Close()

	var statuses []model.IssueStatus
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status rows: %w", err)
	}
	return statuses, nil
}

func scanStatus(sc scanner) (*model.IssueStatus, error) {
	var st model.IssueStatus
	var ratio sql.NullInt64
	if err := sc.Scan(&st.ID, &st.Name, &st.IsClosed, &st.IsDefault, &ratio, &st.Position); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning status: %w", err)
	}
	st.DefaultDoneRatio = intPtr(ratio)
	return &st, nil
}

// Version returns the fix version with the given ID.
func (s *Store) Version(ctx context.Context, id int) (*model.Version, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `SELECT id, project_id, name, status, sharing FROM versions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("version %d: %w", id, ErrNotFound)
	}
	return v, err
}

// Versions returns every fix version ordered by ID.
func (s *Store) Versions(ctx context.Context) ([]model.Version, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, project_id, name, status, sharing FROM versions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying versions: %w", err)
	}
	defer rows.Close()

	var versions []model.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating version rows: %w", err)
	}
	return versions, nil
}

func scanVersion(sc scanner) (*model.Version, error) {
	var v model.Version
	var status, sharing string
	if err := sc.Scan(&v.ID, &v.ProjectID, &v.Name, &status, &sharing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning version: %w", err)
	}
	v.Status = model.VersionStatus(status)
	v.Sharing = model.VersionSharing(sharing)
	return &v, nil
}

// Category returns the issue category with the given ID.
func (s *Store) Category(ctx context.Context, id int) (*model.Category, error) {
	c, err := scanCategory(s.db.QueryRowContext(ctx, `SELECT id, project_id, name, assigned_to_id FROM categories WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("category %d: %w", id, ErrNotFound)
	}
	return c, err
}

// CategoriesFor returns the categories of a project ordered by ID.
func (s *Store) CategoriesFor(ctx context.Context, projectID int) ([]model.Category, error) {
	return s.queryCategories(ctx,
		`SELECT id, project_id, name, assigned_to_id FROM categories WHERE project_id = ? ORDER BY id`, projectID)
}

// Categories returns the categories of every project ordered by ID.
func (s *Store) Categories(ctx context.Context) ([]model.Category, error) {
	return s.queryCategories(ctx, `SELECT id, project_id, name, assigned_to_id FROM categories ORDER BY id`)
}

func (s *Store) queryCategories(ctx context.Context, query string, args ...any) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying categories: %w", err)
	}
	defer rows.Close()

	var categories []model.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating category rows: %w", err)
	}
	return categories, nil
}

func scanCategory(sc scanner) (*model.Category, error) {
	var c model.Category
	var assignee sql.NullInt64
	if err := sc.Scan(&c.ID, &c.ProjectID, &c.Name, &assignee); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning category: %w", err)
	}
	c.AssignedToID = intPtr(assignee)
	return &c, nil
}

// CustomFields returns every custom field ordered by ID.
func (s *Store) CustomFields(ctx context.Context) ([]model.CustomField, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, format, is_required, is_for_all, possible_values, default_value, regexp, min_length, max_length
		 FROM custom_fields ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying custom fields: %w", err)
	}
	defer rows.Close()

	var fields []model.CustomField
	for rows.Next() {
		var f model.CustomField
		var format, values string
		if err := rows.Scan(&f.ID, &f.Name, &format, &f.IsRequired, &f.IsForAll, &values,
			&f.DefaultValue, &f.Regexp, &f.MinLength, &f.MaxLength); err != nil {
			return nil, fmt.Errorf("scanning custom field: %w", err)
		}
		f.Format = model.FieldFormat(format)
		if err := json.Unmarshal([]byte(values), &f.PossibleValues); err != nil {
			return nil, fmt.Errorf("decoding possible values of custom field %d: %w", f.ID, err)
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating custom field rows: %w", err)
	}
	return fields, nil
}

const userColumns = `id, login, mail, active, admin, notification`

// User returns the user with the given ID.
func (s *Store) User(ctx context.Context, id int) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return u, err
}

// UserByLogin resolves a user by login.
func (s *Store) UserByLogin(ctx context.Context, login string) (*model.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE login = ?`, login))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", login, ErrNotFound)
	}
	return u, err
}

// Users returns every user ordered by ID.
func (s *Store) Users(ctx context.Context) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating user rows: %w", err)
	}
	return users, nil
}

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var policy string
	if err := sc.Scan(&u.ID, &u.Login, &u.Mail, &u.Active, &u.Admin, &policy); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	u.Notification = model.NotificationPolicy(policy)
	return &u, nil
}

// ProjectMembers returns the memberships of a project ordered by user ID.
func (s *Store) ProjectMembers(ctx context.Context, projectID int) ([]model.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, project_id, can_view FROM members WHERE project_id = ? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying members: %w", err)
	}
	defer rows.Close()

	var members []model.Member
	for rows.Next() {
		var m model.Member
		if err := rows.Scan(&m.UserID, &m.ProjectID, &m.CanView); err != nil {
			return nil, fmt.Errorf("scanning member: %w", err)
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating member rows: %w", err)
	}
	return members, nil
}

func (s *Store) intColumn(ctx context.Context, query string, args ...any) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ids: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var n int
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning id: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating ids: %w", err)
	}
	return out, nil
}

// ImportStats counts the records written by ImportCatalog.
type ImportStats struct {
	Projects     int `json:"projects"`
	Types        int `json:"types"`
	Statuses     int `json:"statuses"`
	Versions     int `json:"versions"`
	Categories   int `json:"categories"`
	CustomFields int `json:"custom_fields"`
	Users        int `json:"users"`
	Members      int `json:"members"`
}

// ImportCatalog upserts the reference data in c within a single transaction.
// Records are matched by ID and never deleted. The type and custom field
// links of every imported project and type, and the memberships of every
// imported project, are replaced by those in c.
func (s *Store) ImportCatalog(ctx context.Context, c *catalog.File) (*ImportStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	exec := func(what, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("importing %s: %w", what, err)
		}
		return nil
	}

	// Users and custom fields first: categories and join tables point at them.
	for _, u := range c.Users {
		policy := u.Notification
		if policy == "" {
			policy = model.NotifyAll
		}
		if err := exec("user "+u.Login,
			`INSERT INTO users (id, login, mail, active, admin, notification) VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET login = excluded.login, mail = excluded.mail,
			   active = excluded.active, admin = excluded.admin, notification = excluded.notification`,
			u.ID, u.Login, u.Mail, boolInt(u.Active), boolInt(u.Admin), string(policy),
		); err != nil {
			return nil, err
		}
	}

	for _, f := range c.CustomFields {
		values, err := json.Marshal(f.PossibleValues)
		if err != nil {
			return nil, fmt.Errorf("encoding possible values of %q: %w", f.Name, err)
		}
		if f.PossibleValues == nil {
			values = []byte("[]")
		}
		if err := exec("custom field "+f.Name,
			`INSERT INTO custom_fields (id, name, format, is_required, is_for_all, possible_values,
			   default_value, regexp, min_length, max_length)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, format = excluded.format,
			   is_required = excluded.is_required, is_for_all = excluded.is_for_all,
			   possible_values = excluded.possible_values, default_value = excluded.default_value,
			   regexp = excluded.regexp, min_length = excluded.min_length, max_length = excluded.max_length`,
			f.ID, f.Name, string(f.Format), boolInt(f.IsRequired), boolInt(f.IsForAll), string(values),
			f.DefaultValue, f.Regexp, f.MinLength, f.MaxLength,
		); err != nil {
			return nil, err
		}
	}

	for _, t := range c.Types {
		if err := exec("type "+t.Name,
			`INSERT INTO types (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
			t.ID, t.Name,
		); err != nil {
			return nil, err
		}
		if err := exec("type "+t.Name, `DELETE FROM type_custom_fields WHERE type_id = ?`, t.ID); err != nil {
			return nil, err
		}
		for _, fid := range t.CustomFieldIDs {
			if err := exec("type "+t.Name,
				`INSERT INTO type_custom_fields (type_id, custom_field_id) VALUES (?, ?)`, t.ID, fid,
			); err != nil {
				return nil, err
			}
		}
	}

	// Parents may be listed after their children, so links are set in a
	// second pass.
	for _, p := range c.Projects {
		if err := exec("project "+p.Identifier,
			`INSERT INTO projects (id, name, identifier, parent_id, is_public) VALUES (?, ?, ?, NULL, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, identifier = excluded.identifier,
			   is_public = excluded.is_public`,
			p.ID, p.Name, p.Identifier, boolInt(p.IsPublic),
		); err != nil {
			return nil, err
		}
	}
	for _, p := range c.Projects {
		what := "project " + p.Identifier
		if err := exec(what, `UPDATE projects SET parent_id = ? WHERE id = ?`, nullInt(p.ParentID), p.ID); err != nil {
			return nil, err
		}
		if err := exec(what, `DELETE FROM project_types WHERE project_id = ?`, p.ID); err != nil {
			return nil, err
		}
		for _, tid := range p.TypeIDs {
			if err := exec(what, `INSERT INTO project_types (project_id, type_id) VALUES (?, ?)`, p.ID, tid); err != nil {
				return nil, err
			}
		}
		if err := exec(what, `DELETE FROM project_custom_fields WHERE project_id = ?`, p.ID); err != nil {
			return nil, err
		}
		for _, fid := range p.CustomFieldIDs {
			if err := exec(what,
				`INSERT INTO project_custom_fields (project_id, custom_field_id) VALUES (?, ?)`, p.ID, fid,
			); err != nil {
				return nil, err
			}
		}
		if err := exec(what, `DELETE FROM members WHERE project_id = ?`, p.ID); err != nil {
			return nil, err
		}
	}

	for _, st := range c.Statuses {
		if err := exec("status "+st.Name,
			`INSERT INTO statuses (id, name, is_closed, is_default, default_done_ratio, position)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET name = excluded.name, is_closed = excluded.is_closed,
			   is_default = excluded.is_default, default_done_ratio = excluded.default_done_ratio,
			   position = excluded.position`,
			st.ID, st.Name, boolInt(st.IsClosed), boolInt(st.IsDefault), nullInt(st.DefaultDoneRatio), st.Position,
		); err != nil {
			return nil, err
		}
		if st.IsDefault {
			if err := exec("status "+st.Name, `UPDATE statuses SET is_default = 0 WHERE id <> ?`, st.ID); err != nil {
				return nil, err
			}
		}
	}

	for _, v := range c.Versions {
		status, sharing := v.Status, v.Sharing
		if status == "" {
			status = model.VersionOpen
		}
		if sharing == "" {
			sharing = model.SharingNone
		}
		if err := exec("version "+v.Name,
			`INSERT INTO versions (id, project_id, name, status, sharing) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id, name = excluded.name,
			   status = excluded.status, sharing = excluded.sharing`,
			v.ID, v.ProjectID, v.Name, string(status), string(sharing),
		); err != nil {
			return nil, err
		}
	}

	for _, cat := range c.Categories {
		if err := exec("category "+cat.Name,
			`INSERT INTO categories (id, project_id, name, assigned_to_id) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET project_id = excluded.project_id, name = excluded.name,
			   assigned_to_id = excluded.assigned_to_id`,
			cat.ID, cat.ProjectID, cat.Name, nullInt(cat.AssignedToID),
		); err != nil {
			return nil, err
		}
	}

	for _, m := range c.Members {
		if err := exec("membership",
			`INSERT INTO members (user_id, project_id, can_view) VALUES (?, ?, ?)
			 ON CONFLICT(user_id, project_id) DO UPDATE SET can_view = excluded.can_view`,
			m.UserID, m.ProjectID, boolInt(m.CanView),
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}

	return &ImportStats{
		Projects:     len(c.Projects),
		Types:        len(c.Types),
		Statuses:     len(c.Statuses),
		Versions:     len(c.Versions),
		Categories:   len(c.Categories),
		CustomFields: len(c.CustomFields),
		Users:        len(c.Users),
		Members:      len(c.Members),
	}, nil
}

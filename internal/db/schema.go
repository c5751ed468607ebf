package db

import (
	"database/sql"
	"fmt"
	"strconv"
)

const currentSchemaVersion = 2

// schemaDDL contains the CREATE TABLE statements for the current schema.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT
);

CREATE TABLE IF NOT EXISTS projects (
	id         INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	identifier TEXT NOT NULL UNIQUE,
	parent_id  INTEGER REFERENCES projects(id) ON DELETE SET NULL,
	is_public  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS types (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS project_types (
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	type_id    INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
	PRIMARY KEY (project_id, type_id)
);

CREATE TABLE IF NOT EXISTS custom_fields (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	format          TEXT NOT NULL,
	is_required     INTEGER NOT NULL DEFAULT 0,
	is_for_all      INTEGER NOT NULL DEFAULT 0,
	possible_values TEXT NOT NULL DEFAULT '[]',
	default_value   TEXT NOT NULL DEFAULT '',
	regexp          TEXT NOT NULL DEFAULT '',
	min_length      INTEGER NOT NULL DEFAULT 0,
	max_length      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS type_custom_fields (
	type_id         INTEGER NOT NULL REFERENCES types(id) ON DELETE CASCADE,
	custom_field_id INTEGER NOT NULL REFERENCES custom_fields(id) ON DELETE CASCADE,
	PRIMARY KEY (type_id, custom_field_id)
);

CREATE TABLE IF NOT EXISTS project_custom_fields (
	project_id      INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	custom_field_id INTEGER NOT NULL REFERENCES custom_fields(id) ON DELETE CASCADE,
	PRIMARY KEY (project_id, custom_field_id)
);

CREATE TABLE IF NOT EXISTS statuses (
	id                 INTEGER PRIMARY KEY,
	name               TEXT NOT NULL,
	is_closed          INTEGER NOT NULL DEFAULT 0,
	is_default         INTEGER NOT NULL DEFAULT 0,
	default_done_ratio INTEGER,
	position           INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS versions (
	id         INTEGER PRIMARY KEY,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'open',
	sharing    TEXT NOT NULL DEFAULT 'none'
);

CREATE TABLE IF NOT EXISTS users (
	id           INTEGER PRIMARY KEY,
	login        TEXT NOT NULL UNIQUE,
	mail         TEXT NOT NULL DEFAULT '',
	active       INTEGER NOT NULL DEFAULT 1,
	admin        INTEGER NOT NULL DEFAULT 0,
	notification TEXT NOT NULL DEFAULT 'all'
);

CREATE TABLE IF NOT EXISTS categories (
	id             INTEGER PRIMARY KEY,
	project_id     INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	assigned_to_id INTEGER REFERENCES users(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS members (
	user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	can_view   INTEGER NOT NULL DEFAULT 1,
	PRIMARY KEY (user_id, project_id)
);

CREATE TABLE IF NOT EXISTS issues (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	project_id       INTEGER NOT NULL REFERENCES projects(id),
	type_id          INTEGER NOT NULL REFERENCES types(id),
	status_id        INTEGER NOT NULL REFERENCES statuses(id),
	author_id        INTEGER NOT NULL REFERENCES users(id),
	assigned_to_id   INTEGER,
	category_id      INTEGER,
	fixed_version_id INTEGER,
	subject          TEXT NOT NULL,
	description      TEXT NOT NULL DEFAULT '',
	start_date       TEXT,
	due_date         TEXT,
	done_ratio       INTEGER NOT NULL DEFAULT 0,
	estimated_hours  REAL,
	lock_version     INTEGER NOT NULL DEFAULT 0,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS custom_values (
	issue_id        INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	custom_field_id INTEGER NOT NULL,
	value           TEXT NOT NULL,
	PRIMARY KEY (issue_id, custom_field_id)
);

CREATE TABLE IF NOT EXISTS watchers (
	issue_id INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	user_id  INTEGER NOT NULL,
	PRIMARY KEY (issue_id, user_id)
);

CREATE TABLE IF NOT EXISTS issue_relations (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	from_id    INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	to_id      INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	kind       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE(from_id, to_id, kind)
);

CREATE TRIGGER IF NOT EXISTS trg_no_inverse_duplicate_relates
BEFORE INSERT ON issue_relations
WHEN NEW.kind = 'relates' AND EXISTS (
	SELECT 1 FROM issue_relations
	WHERE kind = 'relates'
	  AND from_id = NEW.to_id
	  AND to_id = NEW.from_id
)
BEGIN
	SELECT RAISE(ABORT, 'inverse duplicate relation');
END;

CREATE TABLE IF NOT EXISTS journals (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id      INTEGER NOT NULL REFERENCES issues(id) ON DELETE CASCADE,
	user_id       INTEGER,
	change_set_id TEXT NOT NULL,
	notes         TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_details (
	journal_id INTEGER NOT NULL REFERENCES journals(id) ON DELETE CASCADE,
	field      TEXT NOT NULL,
	old_value  TEXT,
	new_value  TEXT,
	PRIMARY KEY (journal_id, field)
);

CREATE TABLE IF NOT EXISTS time_entries (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	issue_id   INTEGER REFERENCES issues(id) ON DELETE SET NULL,
	project_id INTEGER NOT NULL,
	user_id    INTEGER NOT NULL,
	hours      REAL NOT NULL,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_issues_project_id ON issues(project_id);
CREATE INDEX IF NOT EXISTS idx_issues_status_id ON issues(status_id);
CREATE INDEX IF NOT EXISTS idx_issue_relations_to_id ON issue_relations(to_id);
CREATE INDEX IF NOT EXISTS idx_journals_issue_id ON journals(issue_id);
CREATE INDEX IF NOT EXISTS idx_journals_change_set_id ON journals(change_set_id);
CREATE INDEX IF NOT EXISTS idx_time_entries_issue_id ON time_entries(issue_id);

CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT NOT NULL,
	issue_id   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	sent_at    TEXT
);
`

// Initialize creates all tables if they don't exist and sets the schema version.
func Initialize(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(schemaDDL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}

	// Set schema version only if not already set.
	_, err = tx.Exec(
		`INSERT OR IGNORE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(currentSchemaVersion),
	)
	if err != nil {
		return fmt.Errorf("setting schema version: %w", err)
	}

	return tx.Commit()
}

// SchemaVersion returns the current schema version from the meta table.
func SchemaVersion(db *sql.DB) (int, error) {
	var val string
	err := db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&val)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}

	v, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("parsing schema version %q: %w", val, err)
	}

	return v, nil
}

// migrations is a list of migration functions keyed by the version they migrate TO.
// For example, migrations[2] migrates from version 1 to version 2.
var migrations = map[int]func(tx *sql.Tx) error{
	// Version 2 adds the notification outbox.
	2: func(tx *sql.Tx) error {
		_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS notifications (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	event      TEXT NOT NULL,
	issue_id   INTEGER NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	sent_at    TEXT
);
`)
		return err
	},
}

// Migrate checks the current schema version and applies any pending migrations
// sequentially. It is a no-op when already at the latest version.
func Migrate(db *sql.DB) error {
	version, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	if version == currentSchemaVersion {
		return nil
	}

	for v := version + 1; v <= currentSchemaVersion; v++ {
		migrateFn, ok := migrations[v]
		if !ok {
			return fmt.Errorf("missing migration for version %d", v)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("beginning migration %d transaction: %w", v, err)
		}

		if err := migrateFn(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", v, err)
		}

		if _, err := tx.Exec(
			`UPDATE meta SET value = ? WHERE key = 'schema_version'`,
			strconv.Itoa(v),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("updating schema version to %d: %w", v, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", v, err)
		}
	}

	return nil
}

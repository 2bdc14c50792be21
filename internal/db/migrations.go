package db

import (
	"database/sql"
	"fmt"
)

// migrations is an ordered list of SQL statements to run.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		email      TEXT    NOT NULL UNIQUE,
		name       TEXT    NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS auth_tokens (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		token      TEXT     NOT NULL UNIQUE,
		email      TEXT     NOT NULL,
		expires_at DATETIME NOT NULL,
		used       INTEGER  DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id         TEXT     PRIMARY KEY,
		email      TEXT     NOT NULL,
		expires_at DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS passkey_credentials (
		id              TEXT    PRIMARY KEY,
		email           TEXT    NOT NULL,
		name            TEXT    NOT NULL DEFAULT '',
		credential_json TEXT    NOT NULL,
		created_at      DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS api_keys (
		id           INTEGER  PRIMARY KEY AUTOINCREMENT,
		name         TEXT     NOT NULL,
		key_prefix   TEXT     NOT NULL,
		key_hash     TEXT     NOT NULL UNIQUE,
		created_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		last_used_at DATETIME
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		name        TEXT    NOT NULL,
		owner_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		status      TEXT    NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'finished')),
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		finished_at DATETIME,
		CHECK ((status = 'finished') = (finished_at IS NOT NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS project_collaborators (
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		user_id    INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		added_at   DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (project_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS criteria (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name       TEXT    NOT NULL,
		type       TEXT    NOT NULL CHECK (type IN ('boolean', 'numeric', 'text', 'rating')),
		weight     REAL    CHECK (weight IS NULL OR (weight >= 0.01 AND weight <= 9.99)),
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS realtors (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name       TEXT    NOT NULL,
		company    TEXT    NOT NULL DEFAULT '',
		phone      TEXT    NOT NULL DEFAULT '',
		email      TEXT    NOT NULL DEFAULT '',
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (project_id, name)
	)`,
	`CREATE TABLE IF NOT EXISTS visits (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		name       TEXT    NOT NULL,
		address    TEXT    NOT NULL,
		visit_date TEXT    NOT NULL,
		realtor_id INTEGER REFERENCES realtors(id) ON DELETE SET NULL,
		notes      TEXT    NOT NULL DEFAULT '',
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS visit_assessments (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		visit_id      INTEGER NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		criteria_id   INTEGER NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
		value_text    TEXT    NOT NULL DEFAULT '',
		value_numeric REAL,
		value_boolean INTEGER,
		value_rating  INTEGER CHECK (value_rating IS NULL OR (value_rating >= 1 AND value_rating <= 5)),
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at    DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (visit_id, criteria_id)
	)`,
	`CREATE TABLE IF NOT EXISTS visit_photos (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		visit_id    INTEGER NOT NULL REFERENCES visits(id) ON DELETE CASCADE,
		image_key   TEXT    NOT NULL,
		caption     TEXT    NOT NULL DEFAULT '',
		sort_order  INTEGER NOT NULL DEFAULT 0,
		uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS project_invitations (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		email       TEXT    NOT NULL,
		invited_by  INTEGER NOT NULL REFERENCES users(id),
		token       TEXT    NOT NULL UNIQUE,
		accepted    INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP,
		accepted_at DATETIME,
		UNIQUE (project_id, email)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_visits_project ON visits(project_id, visit_date DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_criteria_project ON criteria(project_id, sort_order)`,
}

// migrate runs all migrations in order.
func migrate(db *sql.DB) error {
	for i, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}

	// Column additions (idempotent, checks if column exists first)
	columnMigrations := []struct {
		table, column, definition string
	}{
		{"api_keys", "email", "TEXT NOT NULL DEFAULT ''"},
		{"passkey_credentials", "user_handle", "TEXT NOT NULL DEFAULT ''"},
		{"users", "receive_confirmation_emails", "INTEGER NOT NULL DEFAULT 0"},
		{"visits", "confirmation_sent_at", "DATETIME"},
	}

	for _, cm := range columnMigrations {
		if err := addColumnIfNotExists(db, cm.table, cm.column, cm.definition); err != nil {
			return fmt.Errorf("adding %s.%s: %w", cm.table, cm.column, err)
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(db *sql.DB, table, column, definition string) error {
	exists, err := columnExists(db, table, column)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	return err
}

func columnExists(db *sql.DB, table, column string) (found bool, err error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, fmt.Errorf("checking table info: %w", err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing rows: %w", cerr)
		}
	}()

	for rows.Next() {
		var cid int
		var name, colType string
		var notNull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return false, fmt.Errorf("scanning column info: %w", err)
		}
		if name == column {
			return true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterating columns: %w", err)
	}
	return false, nil
}

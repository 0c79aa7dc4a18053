package db

import (
	"database/sql"
	"fmt"
)

// All contains the ordered list of migrations to apply.
var All = []string{
	`CREATE TABLE launches (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		mode        TEXT NOT NULL DEFAULT 'DEFAULT',
		rerun       INTEGER NOT NULL DEFAULT 0,
		rerun_of    TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT '',
		start_time  TEXT NOT NULL,
		end_time    TEXT NOT NULL DEFAULT '',
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`,
	`CREATE TABLE items (
		id             TEXT PRIMARY KEY,
		launch_id      TEXT NOT NULL REFERENCES launches(id),
		parent_id      TEXT REFERENCES items(id),
		seq            INTEGER NOT NULL,
		name           TEXT NOT NULL,
		description    TEXT NOT NULL DEFAULT '',
		type           TEXT NOT NULL,
		code_ref       TEXT NOT NULL DEFAULT '',
		test_case_id   TEXT NOT NULL DEFAULT '',
		test_case_hash INTEGER NOT NULL DEFAULT 0,
		has_stats      INTEGER NOT NULL DEFAULT 1,
		status         TEXT NOT NULL DEFAULT '',
		start_time     TEXT NOT NULL,
		end_time       TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX items_parent ON items(parent_id)`,
	`CREATE TABLE item_attributes (
		id      INTEGER PRIMARY KEY,
		item_id TEXT NOT NULL,
		key     TEXT NOT NULL DEFAULT '',
		value   TEXT NOT NULL,
		system  INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE item_parameters (
		id      INTEGER PRIMARY KEY,
		item_id TEXT NOT NULL REFERENCES items(id),
		key     TEXT NOT NULL,
		value   TEXT NOT NULL
	)`,
	`CREATE TABLE logs (
		id              INTEGER PRIMARY KEY,
		launch_id       TEXT NOT NULL REFERENCES launches(id),
		item_id         TEXT REFERENCES items(id),
		time            TEXT NOT NULL,
		level           TEXT NOT NULL,
		message         TEXT NOT NULL DEFAULT '',
		attachment_name TEXT NOT NULL DEFAULT '',
		attachment_mime TEXT NOT NULL DEFAULT '',
		attachment      BLOB
	)`,
}

// Migrate brings db up to len(All), one transaction per statement. The
// schema_version row records how many statements have been applied.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}
	if _, err := db.Exec(`INSERT INTO schema_version (version) SELECT 0 WHERE NOT EXISTS (SELECT 1 FROM schema_version)`); err != nil {
		return fmt.Errorf("initializing schema version: %w", err)
	}

	var applied int
	if err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&applied); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	for n := applied + 1; n <= len(All); n++ {
		if err := applyMigration(db, n, All[n-1]); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, n int, stmt string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("beginning migration %d: %w", n, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("migration %d failed: %w", n, err)
	}
	if _, err := tx.Exec(`UPDATE schema_version SET version = ?`, n); err != nil {
		return fmt.Errorf("updating schema version to %d: %w", n, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", n, err)
	}
	return nil
}

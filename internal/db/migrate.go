// Package db provides database schema migration management.
package db

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"time"
)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	AppliedAt   time.Time
	Description string
	Checksum    string
}

// MigrationSource defines one schema migration: its version, a short
// description, and the SQL to apply and roll back.
type MigrationSource struct {
	Version     int
	Description string
	UpSQL       string
	DownSQL     string
}

// Migrations is the ordered schema history of the sync core.
var Migrations = []MigrationSource{
	{
		Version:     1,
		Description: "offline_actions",
		UpSQL: `
		CREATE TABLE IF NOT EXISTS offline_actions (
			id TEXT PRIMARY KEY,
			site_id TEXT NOT NULL,
			component TEXT NOT NULL,
			instance_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			sequence_id INTEGER NOT NULL,
			kind TEXT NOT NULL,
			name TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			attachments TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			UNIQUE(site_id, component, instance_id, user_id, sequence_id)
		);
		CREATE INDEX IF NOT EXISTS idx_offline_actions_entity
			ON offline_actions(site_id, component, instance_id, user_id);
		`,
		DownSQL: `DROP TABLE IF EXISTS offline_actions;`,
	},
	{
		Version:     2,
		Description: "sync_records",
		UpSQL: `
		CREATE TABLE IF NOT EXISTS sync_records (
			site_id TEXT NOT NULL,
			component TEXT NOT NULL,
			instance_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			last_sync INTEGER NOT NULL,
			warnings TEXT NOT NULL DEFAULT '',
			PRIMARY KEY(site_id, component, instance_id, user_id)
		);
		`,
		DownSQL: `DROP TABLE IF EXISTS sync_records;`,
	},
	{
		Version:     3,
		Description: "staged_attachments",
		UpSQL: `
		CREATE TABLE IF NOT EXISTS staged_attachments (
			id TEXT PRIMARY KEY,
			owner_action_id TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			file_name TEXT NOT NULL,
			size INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_staged_attachments_owner
			ON staged_attachments(owner_action_id);
		CREATE INDEX IF NOT EXISTS idx_staged_attachments_hash
			ON staged_attachments(content_hash);
		`,
		DownSQL: `DROP TABLE IF EXISTS staged_attachments;`,
	},
}

// Migrator handles database schema migrations.
type Migrator struct {
	db      *sql.DB
	sources []MigrationSource
}

// NewMigrator creates a new Migrator instance over the built-in schema history.
func NewMigrator(db *sql.DB) *Migrator {
	return &Migrator{
		db:      db,
		sources: Migrations,
	}
}

// NewMigratorWithSources creates a Migrator over an explicit migration list.
// Used by tests that need a custom history.
func NewMigratorWithSources(db *sql.DB, sources []MigrationSource) *Migrator {
	return &Migrator{
		db:      db,
		sources: sources,
	}
}

// Initialize creates the schema_migrations table if it doesn't exist.
func (m *Migrator) Initialize() error {
	query := `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY CHECK(version > 0),
		applied_at INTEGER NOT NULL CHECK(applied_at > 0),
		description TEXT NOT NULL CHECK(length(description) > 0),
		checksum TEXT NOT NULL CHECK(length(checksum) = 64)
	);`
	_, err := m.db.Exec(query)
	return err
}

// CurrentVersion returns the current schema version.
func (m *Migrator) CurrentVersion() (int, error) {
	var version int
	err := m.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	return version, err
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations() ([]Migration, error) {
	rows, err := m.db.Query("SELECT version, applied_at, description, checksum FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var mig Migration
		var appliedAt int64
		err := rows.Scan(&mig.Version, &appliedAt, &mig.Description, &mig.Checksum)
		if err != nil {
			return nil, err
		}
		mig.AppliedAt = time.Unix(appliedAt, 0)
		migrations = append(migrations, mig)
	}
	return migrations, rows.Err()
}

// Up applies all pending migrations.
func (m *Migrator) Up() error {
	applied, err := m.GetAppliedMigrations()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	appliedVersions := make(map[int]bool)
	for _, mig := range applied {
		appliedVersions[mig.Version] = true
	}

	sources := make([]MigrationSource, len(m.sources))
	copy(sources, m.sources)
	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Version < sources[j].Version
	})

	for _, src := range sources {
		if appliedVersions[src.Version] {
			continue // Already applied
		}

		if err := m.applyMigration(src); err != nil {
			return fmt.Errorf("failed to apply migration V%d: %w", src.Version, err)
		}
	}

	return nil
}

// applyMigration applies a single migration inside a transaction.
func (m *Migrator) applyMigration(src MigrationSource) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(src.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO schema_migrations (version, applied_at, description, checksum)
			  VALUES (?, ?, ?, ?)`
	// Checksum over the up SQL so schema drift is detectable
	hash := sha256.Sum256([]byte(src.UpSQL))
	checksum := hex.EncodeToString(hash[:])
	if _, err := tx.Exec(query, src.Version, time.Now().Unix(), src.Description, checksum); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// Down rolls back the last migration.
func (m *Migrator) Down() error {
	current, err := m.CurrentVersion()
	if err != nil {
		return err
	}
	if current == 0 {
		return fmt.Errorf("no migrations to rollback")
	}

	var src *MigrationSource
	for i := range m.sources {
		if m.sources[i].Version == current {
			src = &m.sources[i]
			break
		}
	}
	if src == nil {
		return fmt.Errorf("no rollback migration found for version %d", current)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(src.DownSQL); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM schema_migrations WHERE version = ?", current); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

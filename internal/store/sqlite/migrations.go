package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// migration is a single versioned, idempotent schema change.
type migration struct {
	version    int
	name       string
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		name:    "init_core_tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS tags (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS engine_types (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS engines (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				port INTEGER NOT NULL,
				type_id TEXT NOT NULL,
				available_resources_json TEXT NOT NULL,
				max_resources_json TEXT NOT NULL,
				additional_info_json TEXT,
				FOREIGN KEY(type_id) REFERENCES engine_types(id)
			)`,
			`CREATE TABLE IF NOT EXISTS hosts (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				ip_address TEXT NOT NULL,
				engine_ids_json TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS templates (
				id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				internal_name TEXT NOT NULL,
				description TEXT,
				allowed_engine_type_ids_json TEXT NOT NULL,
				tag_ids_json TEXT NOT NULL,
				resource_requirements_json TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS workstations (
				id TEXT PRIMARY KEY,
				ip TEXT,
				port INTEGER,
				template_id TEXT NOT NULL,
				host_id TEXT,
				engine_id TEXT,
				status TEXT NOT NULL,
				engine_internal_name TEXT,
				last_status_update TEXT NOT NULL,
				boot_started_at TEXT,
				boot_completed_at TEXT,
				FOREIGN KEY(template_id) REFERENCES templates(id)
			)`,
			`CREATE TABLE IF NOT EXISTS proxy_mappings (
				id TEXT PRIMARY KEY,
				workstation_id TEXT NOT NULL,
				external_path TEXT NOT NULL UNIQUE,
				created_at TEXT NOT NULL,
				archived_at TEXT,
				archived INTEGER NOT NULL DEFAULT 0,
				looked_up INTEGER NOT NULL DEFAULT 0,
				FOREIGN KEY(workstation_id) REFERENCES workstations(id)
			)`,
			`CREATE TABLE IF NOT EXISTS reservations (
				id TEXT PRIMARY KEY,
				status TEXT NOT NULL,
				request_date TEXT NOT NULL,
				start_date TEXT NOT NULL,
				end_date TEXT NOT NULL,
				user_id TEXT NOT NULL,
				username TEXT NOT NULL,
				template_id TEXT NOT NULL,
				workstation_id TEXT,
				proxy_mapping_id TEXT,
				user_label TEXT,
				last_status_update TEXT NOT NULL,
				additional_info_json TEXT,
				FOREIGN KEY(template_id) REFERENCES templates(id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_workstations_status ON workstations(status)`,
			`CREATE INDEX IF NOT EXISTS idx_workstations_engine ON workstations(engine_id)`,
			`CREATE INDEX IF NOT EXISTS idx_reservations_status ON reservations(status)`,
			`CREATE INDEX IF NOT EXISTS idx_reservations_workstation ON reservations(workstation_id)`,
			`CREATE INDEX IF NOT EXISTS idx_proxy_mappings_workstation ON proxy_mappings(workstation_id)`,
		},
	},
}

// Migrate applies every migration not yet recorded in schema_migrations, in
// version order, each inside its own transaction.
func Migrate(db *sql.DB) error {
	if err := validateMigrations(); err != nil {
		return err
	}
	if err := ensureSchemaMigrations(db); err != nil {
		return err
	}
	applied, err := loadAppliedVersions(db)
	if err != nil {
		return err
	}
	if err := verifyKnownMigrations(applied); err != nil {
		return err
	}
	for _, m := range migrations {
		if _, ok := applied[m.version]; ok {
			continue
		}
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func ensureSchemaMigrations(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func loadAppliedVersions(db *sql.DB) (map[int]struct{}, error) {
	rows, err := db.Query(`SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("list schema_migrations: %w", err)
	}
	defer rows.Close()
	applied := make(map[int]struct{})
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[version] = struct{}{}
	}
	return applied, rows.Err()
}

func verifyKnownMigrations(applied map[int]struct{}) error {
	known := make(map[int]struct{}, len(migrations))
	for _, m := range migrations {
		known[m.version] = struct{}{}
	}
	for version := range applied {
		if _, ok := known[version]; !ok {
			return fmt.Errorf("unknown schema migration version %d", version)
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m migration) error {
	if len(m.statements) == 0 {
		return fmt.Errorf("migration %d has no statements", m.version)
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	for _, stmt := range m.statements {
		trimmed := strings.TrimSpace(stmt)
		if trimmed == "" {
			continue
		}
		if _, err := tx.Exec(trimmed); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("exec migration %d: %w", m.version, err)
		}
	}
	appliedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`, m.version, m.name, appliedAt); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

func validateMigrations() error {
	if len(migrations) == 0 {
		return errors.New("no migrations defined")
	}
	seen := make(map[int]struct{}, len(migrations))
	prev := 0
	for _, m := range migrations {
		if m.version <= 0 {
			return fmt.Errorf("migration version must be positive: %d", m.version)
		}
		if _, ok := seen[m.version]; ok {
			return fmt.Errorf("duplicate migration version %d", m.version)
		}
		if m.version < prev {
			return fmt.Errorf("migration version %d is out of order", m.version)
		}
		if strings.TrimSpace(m.name) == "" {
			return fmt.Errorf("migration %d missing name", m.version)
		}
		seen[m.version] = struct{}{}
		prev = m.version
	}
	return nil
}

package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database schema migration
type Migration struct {
	Version     int
	Description string
	Up          func(*sql.Tx) error
	Down        func(*sql.Tx) error
}

// migrations is the ordered list of all database migrations
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create schema_version table",
		Up:          migration001Up,
		Down:        migration001Down,
	},
	{
		Version:     2,
		Description: "Create locate_history table",
		Up:          migration002Up,
		Down:        migration002Down,
	},
	{
		Version:     3,
		Description: "Create move_history table",
		Up:          migration003Up,
		Down:        migration003Down,
	},
	{
		Version:     4,
		Description: "Create error_log table",
		Up:          migration004Up,
		Down:        migration004Down,
	},
}

// LatestVersion is the schema version after all migrations
func LatestVersion() int {
	return migrations[len(migrations)-1].Version
}

// RunMigrations runs all pending database migrations
func (db *DB) RunMigrations() error {
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := migration.Up(tx); err != nil {
				return fmt.Errorf("migration %d failed: %w", migration.Version, err)
			}

			_, err := tx.Exec(`
				INSERT INTO schema_version (version, description, applied_at)
				VALUES (?, ?, ?)
			`, migration.Version, migration.Description, time.Now())
			return err
		})
		if err != nil {
			return err
		}

		db.logger.InfoWithContext("Applied migration", map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
	}

	return nil
}

// RollbackTo reverts migrations above version, newest first
func (db *DB) RollbackTo(version int) error {
	currentVersion, err := db.getCurrentVersion()
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if migration.Version <= version || migration.Version > currentVersion {
			continue
		}

		err := db.ExecTx(func(tx *sql.Tx) error {
			if err := migration.Down(tx); err != nil {
				return fmt.Errorf("rollback %d failed: %w", migration.Version, err)
			}
			if migration.Version == 1 {
				return nil
			}
			_, err := tx.Exec(`DELETE FROM schema_version WHERE version = ?`, migration.Version)
			return err
		})
		if err != nil {
			return err
		}

		db.logger.InfoWithContext("Rolled back migration", map[string]interface{}{"version": migration.Version})
	}

	return nil
}

// Reset drops every history table and recreates the empty schema
func (db *DB) Reset() error {
	if err := db.RollbackTo(1); err != nil {
		return err
	}
	return db.RunMigrations()
}

// getCurrentVersion returns the current schema version
func (db *DB) getCurrentVersion() (int, error) {
	var tableExists bool
	err := db.conn.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&tableExists)
	if err != nil {
		return 0, err
	}

	if !tableExists {
		return 0, nil
	}

	var version int
	err = db.conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// Migration 001: Schema version tracking table
func migration001Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			version INTEGER NOT NULL UNIQUE,
			description TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	return err
}

func migration001Down(tx *sql.Tx) error {
	_, err := tx.Exec(`DROP TABLE IF EXISTS schema_version`)
	return err
}

// Migration 002: One row per locate call
func migration002Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE locate_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			needle TEXT NOT NULL,
			found BOOLEAN NOT NULL DEFAULT 0,
			x INTEGER,
			y INTEGER,
			score INTEGER,
			similarity REAL,
			confidence REAL,
			comparisons INTEGER,
			elapsed_ms INTEGER NOT NULL,
			error_message TEXT,
			located_at DATETIME NOT NULL
		);

		CREATE INDEX idx_locate_needle ON locate_history(needle);
		CREATE INDEX idx_locate_at ON locate_history(located_at);
	`)
	return err
}

func migration002Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP INDEX IF EXISTS idx_locate_at;
		DROP INDEX IF EXISTS idx_locate_needle;
		DROP TABLE IF EXISTS locate_history;
	`)
	return err
}

// Migration 003: One row per pointer move
func migration003Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE move_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_x INTEGER NOT NULL,
			from_y INTEGER NOT NULL,
			to_x INTEGER NOT NULL,
			to_y INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			waypoints INTEGER NOT NULL,
			elapsed_ms INTEGER NOT NULL,
			error_message TEXT,
			moved_at DATETIME NOT NULL
		);

		CREATE INDEX idx_move_at ON move_history(moved_at);
	`)
	return err
}

func migration003Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP INDEX IF EXISTS idx_move_at;
		DROP TABLE IF EXISTS move_history;
	`)
	return err
}

// Migration 004: Recoverable errors raised by any component
func migration004Up(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE error_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			category TEXT NOT NULL,
			severity TEXT NOT NULL,
			component TEXT NOT NULL,
			message TEXT NOT NULL,
			error_message TEXT,
			context TEXT,
			occurred_at DATETIME NOT NULL
		);

		CREATE INDEX idx_error_category ON error_log(category);
		CREATE INDEX idx_error_occurred ON error_log(occurred_at);
	`)
	return err
}

func migration004Down(tx *sql.Tx) error {
	_, err := tx.Exec(`
		DROP INDEX IF EXISTS idx_error_occurred;
		DROP INDEX IF EXISTS idx_error_category;
		DROP TABLE IF EXISTS error_log;
	`)
	return err
}

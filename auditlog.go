// Package main's audit log persists room/user admission and connection
// lifecycle events to SQLite for crash-recoverable introspection.
//
// Migration design follows the ordered-migrations pattern: SQL statements
// live in the [auditMigrations] slice and are applied exactly once, with the
// applied version tracked in a schema_migrations table. Append, never edit
// or reorder, existing entries.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

var auditMigrations = []string{
	// v1 — admission/lifecycle events
	`CREATE TABLE IF NOT EXISTS admission_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event      TEXT NOT NULL,
		room_id    INTEGER NOT NULL,
		user_id    INTEGER NOT NULL,
		created_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — index for time-ordered queries
	`CREATE INDEX IF NOT EXISTS idx_admission_log_created ON admission_log(created_at)`,
	// v3 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

// AuditLog is a SQLite-backed AuditSink.
type AuditLog struct {
	db *sql.DB
}

// OpenAuditLog opens (or creates) the SQLite database at path and applies
// any pending migrations. Use ":memory:" for ephemeral storage (tests).
func OpenAuditLog(path string) (*AuditLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("[audit] open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[audit] busy_timeout: %v (non-fatal)", err)
	}

	a := &AuditLog{db: db}
	if err := a.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("[audit] migrate: %w", err)
	}
	return a, nil
}

func (a *AuditLog) migrate() error {
	if _, err := a.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := a.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range auditMigrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := a.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := a.db.Exec(`INSERT INTO schema_migrations(version) VALUES(?)`, v); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[audit] applied migration v%d", v)
	}
	return nil
}

// Close releases the database connection.
func (a *AuditLog) Close() error {
	return a.db.Close()
}

// Record persists one admission/lifecycle event. Failures are logged, never
// propagated — a logging failure must never fail the registry operation
// that triggered it.
func (a *AuditLog) Record(event string, roomID, userID uint32) {
	_, err := a.db.Exec(
		`INSERT INTO admission_log(event, room_id, user_id) VALUES (?, ?, ?)`,
		event, roomID, userID,
	)
	if err != nil {
		log.Printf("[audit] write failed (ignored): %v", err)
	}
}

// Recent returns the most recent n admission_log rows, newest first. Used
// by the CLI's "history" subcommand.
func (a *AuditLog) Recent(n int) ([]AdmissionRecord, error) {
	rows, err := a.db.Query(
		`SELECT event, room_id, user_id, created_at FROM admission_log ORDER BY id DESC LIMIT ?`, n,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AdmissionRecord
	for rows.Next() {
		var rec AdmissionRecord
		var createdUnix int64
		if err := rows.Scan(&rec.Event, &rec.RoomID, &rec.UserID, &createdUnix); err != nil {
			return nil, err
		}
		rec.CreatedAt = time.Unix(createdUnix, 0)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// AdmissionRecord is one row of the audit log.
type AdmissionRecord struct {
	Event     string
	RoomID    uint32
	UserID    uint32
	CreatedAt time.Time
}

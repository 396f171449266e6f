package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Database wraps the sqlx.DB connection.
type Database struct {
	*sqlx.DB
}

// schema defines the database tables.
//
// The partial unique index on deliveries is the idempotence guarantee:
// at most one SENT row may exist per (user, channel, slot, status,
// cycle) tuple, while failed attempts are free to accumulate.
const schema = `
CREATE TABLE IF NOT EXISTS subscribers (
    user_id TEXT PRIMARY KEY,
    email TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    picture TEXT NOT NULL DEFAULT '',
    telegram_chat_id TEXT NOT NULL DEFAULT '',
    phone_number TEXT NOT NULL DEFAULT '',
    alert_telegram INTEGER NOT NULL DEFAULT 0,
    alert_sms INTEGER NOT NULL DEFAULT 0,
    alert_voice INTEGER NOT NULL DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sessions (
    session_token TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    expires_at DATETIME NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES subscribers(user_id)
);

CREATE TABLE IF NOT EXISTS snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    snapshot_id TEXT UNIQUE NOT NULL,
    taken_at DATETIME NOT NULL,
    total_count INTEGER NOT NULL,
    available_count INTEGER NOT NULL,
    records TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS deliveries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    notification_id TEXT UNIQUE NOT NULL,
    user_id TEXT NOT NULL,
    channel TEXT NOT NULL,
    slot_id TEXT NOT NULL,
    new_status TEXT NOT NULL,
    cycle TEXT NOT NULL,
    message TEXT NOT NULL,
    status TEXT NOT NULL,
    error_reason TEXT NOT NULL DEFAULT '',
    sent_at DATETIME NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_deliveries_idempotence
    ON deliveries(user_id, channel, slot_id, new_status, cycle)
    WHERE status = 'sent';

CREATE INDEX IF NOT EXISTS idx_deliveries_user ON deliveries(user_id, sent_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_taken_at ON snapshots(taken_at);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);
`

// NewDatabase creates a new database connection and initializes the schema.
func NewDatabase(dbPath string) (*Database, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sqlx.Connect("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Initialize schema
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{DB: db}, nil
}

// Close closes the database connection.
func (d *Database) Close() error {
	return d.DB.Close()
}

// Package storage provides persistent storage using SQLite: wallet state,
// parsed transactions with their asset flows, token metadata, and the
// durable sync-job queue.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Storage provides persistent storage for the adasync daemon.
type Storage struct {
	db  *sql.DB
	mu  sync.RWMutex
	now func() time.Time // injectable clock for queue tests
}

// Config holds storage configuration.
type Config struct {
	// DSN is the SQLite database path. A directory gets the default
	// database filename appended.
	DSN string
}

const dbFileName = "adasync.db"

// New creates a new Storage instance and initializes the schema.
func New(cfg *Config) (*Storage, error) {
	dbPath := expandPath(cfg.DSN)

	if info, err := os.Stat(dbPath); err == nil && info.IsDir() {
		dbPath = filepath.Join(dbPath, dbFileName)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Storage{db: db, now: time.Now}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Storage) DB() *sql.DB {
	return s.db
}

// SetClock overrides the queue clock. Intended for tests.
func (s *Storage) SetClock(now func() time.Time) {
	s.now = now
}

// initSchema creates all database tables.
func (s *Storage) initSchema() error {
	schema := `
	-- Wallets: one row per (address, owner). Created lazily on first sync.
	CREATE TABLE IF NOT EXISTS wallets (
		address TEXT NOT NULL,
		owner_user_id TEXT NOT NULL,
		synced_block_height INTEGER NOT NULL DEFAULT 0,
		last_synced_at INTEGER,
		balance_base TEXT,
		created_at INTEGER NOT NULL,

		PRIMARY KEY (address, owner_user_id)
	);

	-- Parsed wallet transactions. Amounts are decimal strings of base
	-- units; they can exceed 64 bits for exotic tokens.
	CREATE TABLE IF NOT EXISTS transactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner_user_id TEXT NOT NULL,
		wallet_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_height INTEGER NOT NULL,
		timestamp INTEGER NOT NULL,
		action TEXT NOT NULL,
		protocol TEXT NOT NULL DEFAULT 'unknown',
		description TEXT NOT NULL DEFAULT '',
		net_ada_change TEXT NOT NULL DEFAULT '0',
		fees TEXT NOT NULL DEFAULT '0',
		created_at INTEGER NOT NULL,

		UNIQUE (owner_user_id, tx_hash)
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_wallet
		ON transactions(wallet_address, owner_user_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_transactions_action
		ON transactions(wallet_address, action);

	-- Per-token flows, owned by their transaction.
	CREATE TABLE IF NOT EXISTS asset_flows (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		transaction_id INTEGER NOT NULL,
		token_unit TEXT NOT NULL,
		in_base TEXT NOT NULL DEFAULT '0',
		out_base TEXT NOT NULL DEFAULT '0',
		net_base TEXT NOT NULL DEFAULT '0',

		UNIQUE (transaction_id, token_unit),
		FOREIGN KEY (transaction_id) REFERENCES transactions(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_asset_flows_unit ON asset_flows(token_unit);

	-- Token metadata registry, shared across wallets.
	CREATE TABLE IF NOT EXISTS tokens (
		unit TEXT PRIMARY KEY,
		policy_id TEXT NOT NULL DEFAULT '',
		asset_name TEXT NOT NULL DEFAULT '',
		name TEXT,
		ticker TEXT,
		decimals INTEGER NOT NULL DEFAULT 0,
		category TEXT NOT NULL DEFAULT 'fungible',
		logo TEXT,
		metadata TEXT,
		updated_at INTEGER NOT NULL
	);

	-- Durable sync-job queue.
	CREATE TABLE IF NOT EXISTS sync_jobs (
		id TEXT PRIMARY KEY,
		wallet_address TEXT NOT NULL,
		user_id TEXT,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		priority INTEGER NOT NULL DEFAULT 5,
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 3,
		scheduled_at INTEGER NOT NULL,
		started_at INTEGER,
		completed_at INTEGER,
		error_message TEXT,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sync_jobs_claim
		ON sync_jobs(status, priority, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_sync_jobs_wallet
		ON sync_jobs(wallet_address, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}

// Package store provides storage backends for Sokoflow.
//
// This file implements the SQLite-backed store. SQLite serializes writes,
// so the expired-row sweep and the conditional insert run inside one
// transaction to keep SetIfAbsent and Increment atomic.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/sokoflow/sokoflow/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SetIfAbsent stores value under key only if no live record exists.
func (s *SQLiteStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`, key, now); err != nil {
		return false, fmt.Errorf("failed to sweep expired record: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_records (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, expiryUnix(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to insert kv record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit kv insert: %w", err)
	}
	slog.Debug("SQLiteStore.SetIfAbsent", "key", key, "stored", n > 0)
	return n > 0, nil
}

// Get retrieves a live value.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_records WHERE key = ?`, key).Scan(&value, &expiresAt)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to query kv record: %w", err)
	}
	if expiresAt.Valid && expiresAt.Int64 <= time.Now().Unix() {
		return "", false, nil
	}
	return value, true, nil
}

// Delete removes a key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete kv record: %w", err)
	}
	return nil
}

// Increment atomically increments the counter under key.
func (s *SQLiteStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.ExecContext(ctx, `DELETE FROM kv_records WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?`, key, now); err != nil {
		return 0, fmt.Errorf("failed to sweep expired counter: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO kv_records (key, value, expires_at) VALUES (?, '1', ?)
		 ON CONFLICT(key) DO UPDATE SET value = CAST(CAST(kv_records.value AS INTEGER) + 1 AS TEXT)`,
		key, expiryUnix(ttl)); err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	var value string
	if err := tx.QueryRowContext(ctx, `SELECT value FROM kv_records WHERE key = ?`, key).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit counter increment: %w", err)
	}
	return parseCounter(value), nil
}

// SaveState writes the persisted schema of the state.
func (s *SQLiteStore) SaveState(ctx context.Context, state *models.ConversationState) error {
	data, err := state.ToJSON()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversation_states (tenant_id, conversation_id, state_json, updated_at) VALUES (?, ?, ?, ?)`,
		state.TenantID, state.ConversationID, string(data), time.Now().Unix())
	if err != nil {
		slog.Error("SQLiteStore.SaveState failed", "error", err, "tenantID", state.TenantID, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("SQLiteStore.SaveState succeeded", "tenantID", state.TenantID, "conversationID", state.ConversationID)
	return nil
}

// LoadState retrieves and deserializes the state for a conversation.
func (s *SQLiteStore) LoadState(ctx context.Context, tenantID, conversationID string) (*models.ConversationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM conversation_states WHERE tenant_id = ? AND conversation_id = ?`,
		tenantID, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, models.ErrStateNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.LoadState failed", "error", err, "tenantID", tenantID, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	return models.FromJSON([]byte(data))
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// expiryUnix converts a TTL into a nullable unix timestamp column value.
func expiryUnix(ttl time.Duration) any {
	if ttl <= 0 {
		return nil
	}
	return time.Now().Add(ttl).Unix()
}

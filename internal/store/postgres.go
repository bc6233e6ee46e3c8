// Package store provides storage backends for Sokoflow.
//
// This file implements the PostgreSQL-backed store. Set-if-absent maps to
// INSERT .. ON CONFLICT DO NOTHING and increments to an atomic upsert, so no
// client-side read-modify-write occurs.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/sokoflow/sokoflow/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// SetIfAbsent stores value under key only if no live record exists.
func (s *PostgresStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_records WHERE key = $1 AND expires_at IS NOT NULL AND expires_at <= $2`, key, now); err != nil {
		return false, fmt.Errorf("failed to sweep expired record: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kv_records (key, value, expires_at) VALUES ($1, $2, $3) ON CONFLICT (key) DO NOTHING`,
		key, value, expiryUnix(ttl))
	if err != nil {
		return false, fmt.Errorf("failed to insert kv record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	slog.Debug("PostgresStore.SetIfAbsent", "key", key, "stored", n > 0)
	return n > 0, nil
}

// Get retrieves a live value.
func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT value, expires_at FROM kv_records WHERE key = $1`, key).Scan(&value, &expiresAt)
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
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("failed to delete kv record: %w", err)
	}
	return nil
}

// Increment atomically increments the counter under key.
func (s *PostgresStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := time.Now().Unix()
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_records WHERE key = $1 AND expires_at IS NOT NULL AND expires_at <= $2`, key, now); err != nil {
		return 0, fmt.Errorf("failed to sweep expired counter: %w", err)
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO kv_records (key, value, expires_at) VALUES ($1, '1', $2)
		 ON CONFLICT (key) DO UPDATE SET value = ((kv_records.value)::bigint + 1)::text
		 RETURNING value`,
		key, expiryUnix(ttl)).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter: %w", err)
	}
	return parseCounter(value), nil
}

// SaveState writes the persisted schema of the state.
func (s *PostgresStore) SaveState(ctx context.Context, state *models.ConversationState) error {
	data, err := state.ToJSON()
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO conversation_states (tenant_id, conversation_id, state_json, updated_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, conversation_id) DO UPDATE SET state_json = EXCLUDED.state_json, updated_at = EXCLUDED.updated_at`,
		state.TenantID, state.ConversationID, string(data), time.Now().Unix())
	if err != nil {
		slog.Error("PostgresStore.SaveState failed", "error", err, "tenantID", state.TenantID, "conversationID", state.ConversationID)
		return fmt.Errorf("failed to save conversation state: %w", err)
	}
	slog.Debug("PostgresStore.SaveState succeeded", "tenantID", state.TenantID, "conversationID", state.ConversationID)
	return nil
}

// LoadState retrieves and deserializes the state for a conversation.
func (s *PostgresStore) LoadState(ctx context.Context, tenantID, conversationID string) (*models.ConversationState, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT state_json FROM conversation_states WHERE tenant_id = $1 AND conversation_id = $2`,
		tenantID, conversationID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, models.ErrStateNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.LoadState failed", "error", err, "tenantID", tenantID, "conversationID", conversationID)
		return nil, fmt.Errorf("failed to load conversation state: %w", err)
	}
	return models.FromJSON([]byte(data))
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}

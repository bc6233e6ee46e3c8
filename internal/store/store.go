// Package store provides storage backends for Sokoflow.
//
// Two concerns live here: the conversation state repository (persisted JSON
// per tenant and conversation) and the KV store used for distributed locks,
// processing markers and cooldown counters. All KV mutations are atomic on
// the backend; client-side read-modify-write is not permitted.
package store

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sokoflow/sokoflow/internal/models"
)

// KV is the atomic key/value contract backing locks, processing state and
// rate-limiter counters. Implementations must make SetIfAbsent and Increment
// atomic; TTL expiry is checked lazily on access.
type KV interface {
	// SetIfAbsent stores value under key only if no live record exists.
	// Returns true if the value was stored, false if a live record was present.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Get retrieves a live value. The second return is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Increment atomically increments the counter under key and returns the
	// new value. A fresh counter starts at 1 and carries the given TTL.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// StateStore persists conversation state between turns.
type StateStore interface {
	// SaveState writes the persisted schema of the state, replacing any
	// previous record for the same (tenant, conversation).
	SaveState(ctx context.Context, state *models.ConversationState) error

	// LoadState retrieves the state for a conversation. Returns
	// models.ErrStateNotFound when no record exists.
	LoadState(ctx context.Context, tenantID, conversationID string) (*models.ConversationState, error)
}

// Store combines both storage concerns behind one backend connection.
type Store interface {
	KV
	StateStore
	Close() error
}

// Opts holds configuration options for storage backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for storage backends.
type Option func(*Opts)

// WithDSN sets the database DSN (a file path for SQLite, a connection URL
// for Postgres).
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for file paths.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// Open creates the store backend matching the DSN type. An empty DSN yields
// the in-memory store.
func Open(dsn string) (Store, error) {
	if dsn == "" {
		slog.Debug("store.Open: no DSN provided, using in-memory store")
		return NewMemoryStore(), nil
	}
	switch DetectDSNType(dsn) {
	case "postgres":
		slog.Debug("store.Open: detected PostgreSQL DSN")
		return NewPostgresStore(WithDSN(dsn))
	default:
		slog.Debug("store.Open: detected SQLite DSN", "path", dsn)
		return NewSQLiteStore(WithDSN(dsn))
	}
}

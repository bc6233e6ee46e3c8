// Package store provides storage backends for Sokoflow.
//
// This file implements an in-memory store used in tests and single-process
// deployments without a database.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/sokoflow/sokoflow/internal/models"
)

type memoryRecord struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// MemoryStore is an in-memory Store implementation. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	kv     map[string]memoryRecord
	states map[string][]byte
	now    func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		kv:     make(map[string]memoryRecord),
		states: make(map[string][]byte),
		now:    time.Now,
	}
}

// SetClock overrides the clock used for TTL checks (for tests).
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) live(key string) (memoryRecord, bool) {
	rec, ok := s.kv[key]
	if !ok {
		return memoryRecord{}, false
	}
	if !rec.expiresAt.IsZero() && !s.now().Before(rec.expiresAt) {
		delete(s.kv, key)
		return memoryRecord{}, false
	}
	return rec, true
}

// SetIfAbsent stores value under key only if no live record exists.
func (s *MemoryStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	rec := memoryRecord{value: value}
	if ttl > 0 {
		rec.expiresAt = s.now().Add(ttl)
	}
	s.kv[key] = rec
	return true, nil
}

// Get retrieves a live value.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(key)
	if !ok {
		return "", false, nil
	}
	return rec.value, true, nil
}

// Delete removes a key.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

// Increment atomically increments the counter under key.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.live(key)
	var n int64
	if ok {
		n = parseCounter(rec.value) + 1
		rec.value = formatCounter(n)
	} else {
		n = 1
		rec = memoryRecord{value: formatCounter(1)}
		if ttl > 0 {
			rec.expiresAt = s.now().Add(ttl)
		}
	}
	s.kv[key] = rec
	return n, nil
}

// SaveState writes the persisted schema of the state.
func (s *MemoryStore) SaveState(ctx context.Context, state *models.ConversationState) error {
	data, err := state.ToJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.TenantID+"/"+state.ConversationID] = data
	return nil
}

// LoadState retrieves and deserializes the state for a conversation.
func (s *MemoryStore) LoadState(ctx context.Context, tenantID, conversationID string) (*models.ConversationState, error) {
	s.mu.Lock()
	data, ok := s.states[tenantID+"/"+conversationID]
	s.mu.Unlock()
	if !ok {
		return nil, models.ErrStateNotFound
	}
	return models.FromJSON(data)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

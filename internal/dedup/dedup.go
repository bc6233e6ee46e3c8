// Package dedup guards inbound message processing: a distributed lock keyed
// by message fingerprint guarantees at-most-one-active-processing per
// message, a processing-state record guards against replayed webhooks, and
// the burst coalescer folds rapid successive messages into one turn.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/store"
)

// TTLs for the two per-fingerprint records. Lock expiry is the safety net
// for crashed workers that never reach the release path.
const (
	// LockTTL bounds how long a worker may hold a message lock.
	LockTTL = 300 * time.Second
	// ProcessingStateTTL bounds how long completed/failed markers block replays.
	ProcessingStateTTL = 600 * time.Second
)

// ProcessingStatus is the lifecycle marker recorded per fingerprint.
type ProcessingStatus string

const (
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Fingerprint deterministically identifies a specific inbound message:
// conversation, message ID and a 16-hex-char prefix of the content hash.
func Fingerprint(conversationID, messageID, messageText string) string {
	content := sha256.Sum256([]byte(messageText))
	contentPrefix := hex.EncodeToString(content[:])[:16]
	h := sha256.Sum256([]byte(conversationID + "|" + messageID + "|" + contentPrefix))
	return hex.EncodeToString(h[:])
}

// MessageLock implements the distributed mutual-exclusion and replay guard
// on any atomic set-if-absent KV store.
type MessageLock struct {
	kv    store.KV
	owner string
	now   func() time.Time
}

// NewMessageLock creates a lock manager. The owner string identifies this
// worker in lock records for debugging.
func NewMessageLock(kv store.KV, owner string) *MessageLock {
	return &MessageLock{kv: kv, owner: owner, now: time.Now}
}

// SetClock overrides the clock used for lock records (for tests).
func (m *MessageLock) SetClock(now func() time.Time) {
	m.now = now
}

// LockRecord is the decoded value stored under a held lock: which worker
// holds it and when it was taken.
type LockRecord struct {
	Owner      string
	AcquiredAt time.Time
}

func lockRecordValue(owner string, at time.Time) string {
	return owner + "|" + at.UTC().Format(time.RFC3339)
}

func parseLockRecord(value string) LockRecord {
	owner, stamp, ok := strings.Cut(value, "|")
	if !ok {
		return LockRecord{Owner: value}
	}
	at, err := time.Parse(time.RFC3339, stamp)
	if err != nil {
		return LockRecord{Owner: owner}
	}
	return LockRecord{Owner: owner, AcquiredAt: at}
}

// Acquire takes the processing lock for a fingerprint. It fails with
// LockHeldError when another worker owns the lock; callers must skip the
// message rather than retry inline.
func (m *MessageLock) Acquire(ctx context.Context, fingerprint string) error {
	stored, err := m.kv.SetIfAbsent(ctx, lockKey(fingerprint), lockRecordValue(m.owner, m.now()), LockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire message lock: %w", err)
	}
	if !stored {
		slog.Debug("MessageLock.Acquire: lock held elsewhere", "fingerprint", fingerprint)
		return &models.LockHeldError{Fingerprint: fingerprint}
	}
	if err := m.setStatus(ctx, fingerprint, StatusProcessing); err != nil {
		slog.Warn("MessageLock.Acquire: failed to record processing state", "error", err, "fingerprint", fingerprint)
	}
	slog.Debug("MessageLock.Acquire: lock acquired", "fingerprint", fingerprint, "owner", m.owner)
	return nil
}

// Release drops the lock and records the final processing status. It must
// run on every completion path, including internal failures.
func (m *MessageLock) Release(ctx context.Context, fingerprint string, status ProcessingStatus) error {
	if err := m.setStatus(ctx, fingerprint, status); err != nil {
		slog.Warn("MessageLock.Release: failed to record final state", "error", err, "fingerprint", fingerprint)
	}
	if err := m.kv.Delete(ctx, lockKey(fingerprint)); err != nil {
		return fmt.Errorf("failed to release message lock: %w", err)
	}
	slog.Debug("MessageLock.Release: lock released", "fingerprint", fingerprint, "status", status)
	return nil
}

// IsHeld reports whether a live lock exists for the fingerprint.
func (m *MessageLock) IsHeld(ctx context.Context, fingerprint string) (bool, error) {
	_, found, err := m.kv.Get(ctx, lockKey(fingerprint))
	if err != nil {
		return false, fmt.Errorf("failed to check message lock: %w", err)
	}
	return found, nil
}

// Holder returns the decoded lock record for a fingerprint, when held.
func (m *MessageLock) Holder(ctx context.Context, fingerprint string) (LockRecord, bool, error) {
	value, found, err := m.kv.Get(ctx, lockKey(fingerprint))
	if err != nil {
		return LockRecord{}, false, fmt.Errorf("failed to check message lock: %w", err)
	}
	if !found {
		return LockRecord{}, false, nil
	}
	return parseLockRecord(value), true, nil
}

// Status returns the recorded processing status for the fingerprint.
func (m *MessageLock) Status(ctx context.Context, fingerprint string) (ProcessingStatus, bool, error) {
	value, found, err := m.kv.Get(ctx, stateKey(fingerprint))
	if err != nil {
		return "", false, fmt.Errorf("failed to check processing state: %w", err)
	}
	if !found {
		return "", false, nil
	}
	return ProcessingStatus(value), true, nil
}

// IsDuplicate reports whether the message should be dropped: a lock is held
// (in-flight race) or a prior completed state exists (replayed webhook).
// Failed attempts are not duplicates; a retry may process them again.
func (m *MessageLock) IsDuplicate(ctx context.Context, fingerprint string) (bool, error) {
	held, err := m.IsHeld(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	if held {
		return true, nil
	}
	status, found, err := m.Status(ctx, fingerprint)
	if err != nil {
		return false, err
	}
	return found && status == StatusCompleted, nil
}

// setStatus overwrites the processing-state record. The lock serializes
// writers, so delete-then-set is race-free for the single owner.
func (m *MessageLock) setStatus(ctx context.Context, fingerprint string, status ProcessingStatus) error {
	key := stateKey(fingerprint)
	if err := m.kv.Delete(ctx, key); err != nil {
		return err
	}
	if _, err := m.kv.SetIfAbsent(ctx, key, string(status), ProcessingStateTTL); err != nil {
		return err
	}
	return nil
}

func lockKey(fingerprint string) string {
	return "dedup:lock:" + fingerprint
}

func stateKey(fingerprint string) string {
	return "dedup:state:" + fingerprint
}

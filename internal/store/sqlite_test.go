package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sokoflow/sokoflow/internal/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "sokoflow_test.db")
	s, err := NewSQLiteStore(WithDSN(dsn))
	if err != nil {
		t.Fatalf("failed to create SQLite store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_RequiresDSN(t *testing.T) {
	if _, err := NewSQLiteStore(); err == nil {
		t.Fatal("expected error when DSN not set")
	}
}

func TestSQLiteStore_SetIfAbsentAndGet(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	ok, err := s.SetIfAbsent(ctx, "lock:x", "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first SetIfAbsent should succeed")
	}
	if ok, _ := s.SetIfAbsent(ctx, "lock:x", "worker-2", time.Minute); ok {
		t.Fatal("second SetIfAbsent should fail")
	}
	value, found, err := s.Get(ctx, "lock:x")
	if err != nil || !found {
		t.Fatalf("expected record, found=%v err=%v", found, err)
	}
	if value != "worker-1" {
		t.Errorf("expected worker-1, got %q", value)
	}

	if err := s.Delete(ctx, "lock:x"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if ok, _ := s.SetIfAbsent(ctx, "lock:x", "worker-3", time.Minute); !ok {
		t.Error("SetIfAbsent should succeed after delete")
	}
}

func TestSQLiteStore_Increment(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "counter:y", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
}

func TestSQLiteStore_StatePersistence(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	state := models.NewConversationState("ten_1", "conv_9", "req_1")
	state.Intent = models.IntentSupportQuestion
	state.IntentConfidence = 0.77
	state.Journey = models.JourneySupport
	state.CasualTurns = 1

	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}

	// Overwrite with a newer turn.
	state.TurnCount = 5
	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("second SaveState failed: %v", err)
	}

	got, err := s.LoadState(ctx, "ten_1", "conv_9")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got.TurnCount != 5 || got.Intent != models.IntentSupportQuestion {
		t.Errorf("unexpected loaded state: %+v", got)
	}

	if _, err := s.LoadState(ctx, "ten_1", "absent"); err != models.ErrStateNotFound {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}

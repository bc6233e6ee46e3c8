package store

import (
	"context"
	"testing"
	"time"

	"github.com/sokoflow/sokoflow/internal/models"
)

func TestMemoryStore_SetIfAbsent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, err := s.SetIfAbsent(ctx, "lock:a", "worker-1", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("first SetIfAbsent should succeed")
	}

	ok, err = s.SetIfAbsent(ctx, "lock:a", "worker-2", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("second SetIfAbsent should fail while record is live")
	}

	value, found, err := s.Get(ctx, "lock:a")
	if err != nil || !found {
		t.Fatalf("expected live record, found=%v err=%v", found, err)
	}
	if value != "worker-1" {
		t.Errorf("expected original value preserved, got %q", value)
	}
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if ok, _ := s.SetIfAbsent(ctx, "lock:b", "w1", 30*time.Second); !ok {
		t.Fatal("initial set failed")
	}

	// Advance past the TTL; the record becomes absent.
	now = now.Add(31 * time.Second)
	if _, found, _ := s.Get(ctx, "lock:b"); found {
		t.Error("expired record should not be returned")
	}
	if ok, _ := s.SetIfAbsent(ctx, "lock:b", "w2", 30*time.Second); !ok {
		t.Error("SetIfAbsent should succeed after expiry")
	}
}

func TestMemoryStore_Increment(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.Increment(ctx, "counter:c", time.Minute)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected counter %d, got %d", want, got)
		}
	}
}

func TestMemoryStore_IncrementResetsAfterExpiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	s.SetClock(func() time.Time { return now })

	if _, err := s.Increment(ctx, "counter:d", time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	now = now.Add(2 * time.Minute)
	got, err := s.Increment(ctx, "counter:d", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1 {
		t.Errorf("expected counter reset to 1 after expiry, got %d", got)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if _, err := s.SetIfAbsent(ctx, "lock:e", "w1", 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "lock:e"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, found, _ := s.Get(ctx, "lock:e"); found {
		t.Error("deleted key should be absent")
	}
	// Deleting an absent key is not an error.
	if err := s.Delete(ctx, "lock:e"); err != nil {
		t.Errorf("delete of absent key should not error: %v", err)
	}
}

func TestMemoryStore_StateRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	state := models.NewConversationState("ten_1", "conv_1", "req_1")
	state.Intent = models.IntentOrderStatus
	state.IntentConfidence = 0.92
	state.Journey = models.JourneyOrders
	state.TurnCount = 2
	state.IncomingMessage = "transient text"

	if err := s.SaveState(ctx, state); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	got, err := s.LoadState(ctx, "ten_1", "conv_1")
	if err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if got.Intent != models.IntentOrderStatus || got.Journey != models.JourneyOrders || got.TurnCount != 2 {
		t.Errorf("persisted fields mismatch: %+v", got)
	}
	if got.IncomingMessage != "" {
		t.Error("transient field should not survive persistence")
	}
}

func TestMemoryStore_LoadStateNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.LoadState(context.Background(), "ten_1", "missing"); err != models.ErrStateNotFound {
		t.Errorf("expected ErrStateNotFound, got %v", err)
	}
}

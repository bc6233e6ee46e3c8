package messaging

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sokoflow/sokoflow/internal/dedup"
	"github.com/sokoflow/sokoflow/internal/flow"
	"github.com/sokoflow/sokoflow/internal/models"
	"github.com/sokoflow/sokoflow/internal/store"
)

// recordingRunner captures turn requests and returns a canned reply.
type recordingRunner struct {
	mu       sync.Mutex
	requests []flow.TurnRequest
	reply    string
	err      error
}

func (r *recordingRunner) ProcessTurn(ctx context.Context, req flow.TurnRequest) (*models.ConversationState, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	state := models.NewConversationState(req.TenantID, req.ConversationID, "req_test")
	state.ResponseText = r.reply
	return state, nil
}

func (r *recordingRunner) seen() []flow.TurnRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]flow.TurnRequest, len(r.requests))
	copy(out, r.requests)
	return out
}

func newTestProcessor(runner *recordingRunner) (*Processor, *MockService) {
	sender := NewMockService()
	lock := dedup.NewMessageLock(store.NewMemoryStore(), "worker-test")
	p := NewProcessor(runner, sender, lock, 4)
	return p, sender
}

func TestHandleProcessesAndReplies(t *testing.T) {
	runner := &recordingRunner{reply: "Karibu! How can I help?"}
	p, sender := newTestProcessor(runner)

	outcome, err := p.Handle(context.Background(), InboundMessage{
		TenantID:  "duka-lah",
		Phone:     "+254 700 000 001",
		MessageID: "msg_1",
		Text:      "hello, do you have phones?",
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if outcome != OutcomeAccepted {
		t.Errorf("outcome = %q, want accepted", outcome)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	requests := runner.seen()
	if len(requests) != 1 {
		t.Fatalf("turns run = %d, want 1", len(requests))
	}
	if requests[0].ConversationID != "conv_254700000001" {
		t.Errorf("conversation ID = %q", requests[0].ConversationID)
	}
	if requests[0].Phone != "+254700000001" {
		t.Errorf("phone = %q", requests[0].Phone)
	}

	sent := sender.Sent()
	if len(sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(sent))
	}
	if sent[0].Body != "Karibu! How can I help?" {
		t.Errorf("reply body = %q", sent[0].Body)
	}
}

func TestHandleRejectsInvalidMessages(t *testing.T) {
	runner := &recordingRunner{reply: "ok"}
	p, _ := newTestProcessor(runner)
	defer p.Close()
	ctx := context.Background()

	tests := []struct {
		name string
		msg  InboundMessage
		want error
	}{
		{"missing tenant", InboundMessage{Phone: "+254700000001", Text: "hi"}, models.ErrEmptyTenant},
		{"empty text", InboundMessage{TenantID: "t", Phone: "+254700000001", Text: "  "}, models.ErrEmptyMessage},
		{"no conversation or phone", InboundMessage{TenantID: "t", Text: "hi"}, models.ErrEmptyConversation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcome, err := p.Handle(ctx, tt.msg)
			if outcome != OutcomeRejected {
				t.Errorf("outcome = %q, want rejected", outcome)
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}

	if len(runner.seen()) != 0 {
		t.Error("rejected messages must not reach the pipeline")
	}
}

func TestHandleSuppressesDuplicateReplay(t *testing.T) {
	runner := &recordingRunner{reply: "done"}
	p, sender := newTestProcessor(runner)
	ctx := context.Background()

	msg := InboundMessage{
		TenantID:       "duka-lah",
		ConversationID: "conv_x",
		MessageID:      "msg_dup",
		Phone:          "+254700000001",
		Text:           "same message",
	}
	if _, err := p.Handle(ctx, msg); err != nil {
		t.Fatalf("first Handle failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Replay of the identical message after completion must be dropped.
	p2 := NewProcessor(runner, sender, dedupLockFrom(p), 4)
	if _, err := p2.Handle(ctx, msg); err != nil {
		t.Fatalf("replay Handle failed: %v", err)
	}
	if err := p2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if n := len(runner.seen()); n != 1 {
		t.Errorf("turns run = %d, want 1 (replay suppressed)", n)
	}
	if n := len(sender.Sent()); n != 1 {
		t.Errorf("messages sent = %d, want 1", n)
	}
}

// dedupLockFrom shares the first processor's lock store so the replay sees
// the completed processing state.
func dedupLockFrom(p *Processor) *dedup.MessageLock {
	return p.lock
}

func TestHandleFailedTurnIsRetryable(t *testing.T) {
	runner := &recordingRunner{err: errors.New("store down")}
	p, sender := newTestProcessor(runner)
	ctx := context.Background()

	msg := InboundMessage{
		TenantID:       "duka-lah",
		ConversationID: "conv_y",
		MessageID:      "msg_retry",
		Phone:          "+254700000001",
		Text:           "try me",
	}
	if _, err := p.Handle(ctx, msg); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(sender.Sent()) != 0 {
		t.Error("failed turn must not send a reply")
	}

	// A failed marker is retryable: the same message runs again.
	runner.err = nil
	runner.reply = "recovered"
	p2 := NewProcessor(runner, sender, dedupLockFrom(p), 4)
	if _, err := p2.Handle(ctx, msg); err != nil {
		t.Fatalf("retry Handle failed: %v", err)
	}
	if err := p2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if n := len(runner.seen()); n != 2 {
		t.Errorf("turns run = %d, want 2 (failed then retried)", n)
	}
	if n := len(sender.Sent()); n != 1 {
		t.Errorf("messages sent = %d, want 1", n)
	}
}

func TestHandleCoalescesBurstIntoOneTurn(t *testing.T) {
	runner := &recordingRunner{reply: "got it"}
	p, _ := newTestProcessor(runner)
	p.Coalescer().SetWindow(20 * time.Millisecond)
	ctx := context.Background()

	base := InboundMessage{TenantID: "duka-lah", ConversationID: "conv_b", Phone: "+254700000001"}

	first := base
	first.MessageID, first.Text = "msg_1", "I want"
	if outcome, err := p.Handle(ctx, first); err != nil || outcome != OutcomeAccepted {
		t.Fatalf("first message: outcome=%q err=%v", outcome, err)
	}

	second := base
	second.MessageID, second.Text = "msg_2", "a blue dress"
	if outcome, err := p.Handle(ctx, second); err != nil || outcome != OutcomeQueued {
		t.Fatalf("second message: outcome=%q err=%v", outcome, err)
	}
	third := base
	third.MessageID, third.Text = "msg_3", "size 12"
	if outcome, err := p.Handle(ctx, third); err != nil || outcome != OutcomeQueued {
		t.Fatalf("third message: outcome=%q err=%v", outcome, err)
	}

	// Wait out the quiet window so the burst drains, then close.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(runner.seen()) >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	requests := runner.seen()
	if len(requests) != 2 {
		t.Fatalf("turns run = %d, want 2 (inline first + one coalesced batch)", len(requests))
	}
	batch := requests[1]
	if !strings.Contains(batch.MessageText, "a blue dress") || !strings.Contains(batch.MessageText, "size 12") {
		t.Errorf("batch text = %q, want both queued messages", batch.MessageText)
	}
	if strings.Index(batch.MessageText, "a blue dress") > strings.Index(batch.MessageText, "size 12") {
		t.Error("batch text out of arrival order")
	}
}

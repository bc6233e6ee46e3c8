package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sokoflow/sokoflow/internal/dedup"
	"github.com/sokoflow/sokoflow/internal/flow"
	"github.com/sokoflow/sokoflow/internal/models"
)

// DefaultWorkerLimit bounds concurrent turn executions across conversations.
const DefaultWorkerLimit = 16

// TurnTimeout bounds one pipeline run detached from the webhook request.
const TurnTimeout = 60 * time.Second

// TurnRunner runs one turn of the pipeline. Satisfied by flow.Orchestrator.
type TurnRunner interface {
	ProcessTurn(ctx context.Context, req flow.TurnRequest) (*models.ConversationState, error)
}

// Outcome reports what the processor did with an inbound message.
type Outcome string

const (
	// OutcomeAccepted means the message was handed to a worker.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeQueued means the message joined a burst and will be processed
	// together with its batch.
	OutcomeQueued Outcome = "queued"
	// OutcomeRejected means the message failed validation.
	OutcomeRejected Outcome = "rejected"
)

// InboundMessage is one raw message arriving from a transport webhook.
type InboundMessage struct {
	TenantID       string `json:"tenant_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	Phone          string `json:"phone,omitempty"`
	Text           string `json:"text"`
}

// conversationMeta carries the identity the coalescer key maps back to.
type conversationMeta struct {
	tenantID       string
	conversationID string
	phone          string
}

// Processor accepts raw inbound messages, applies burst coalescing and
// duplicate suppression, runs the turn pipeline on a bounded worker pool and
// delivers the reply.
type Processor struct {
	runner    TurnRunner
	sender    Service
	lock      *dedup.MessageLock
	coalescer *dedup.BurstCoalescer
	group     *errgroup.Group

	mu   sync.Mutex
	meta map[string]conversationMeta
}

// NewProcessor wires the inbound path. workerLimit <= 0 uses the default.
func NewProcessor(runner TurnRunner, sender Service, lock *dedup.MessageLock, workerLimit int) *Processor {
	if workerLimit <= 0 {
		workerLimit = DefaultWorkerLimit
	}
	group := new(errgroup.Group)
	group.SetLimit(workerLimit)

	p := &Processor{
		runner: runner,
		sender: sender,
		lock:   lock,
		group:  group,
		meta:   make(map[string]conversationMeta),
	}
	p.coalescer = dedup.NewBurstCoalescer(p.drainBatch)
	return p
}

// Coalescer exposes the burst coalescer for test clock control.
func (p *Processor) Coalescer() *dedup.BurstCoalescer { return p.coalescer }

// Handle accepts one inbound message. It returns immediately: processing
// runs on the worker pool, and rapid-fire messages in the same conversation
// are coalesced into a single turn.
func (p *Processor) Handle(ctx context.Context, msg InboundMessage) (Outcome, error) {
	if msg.TenantID == "" {
		return OutcomeRejected, models.ErrEmptyTenant
	}
	if strings.TrimSpace(msg.Text) == "" {
		return OutcomeRejected, models.ErrEmptyMessage
	}

	phone := msg.Phone
	if phone != "" {
		canonical, err := CanonicalizePhone(phone)
		if err != nil {
			return OutcomeRejected, err
		}
		phone = canonical
	}

	conversationID := msg.ConversationID
	if conversationID == "" {
		if phone == "" {
			return OutcomeRejected, models.ErrEmptyConversation
		}
		conversationID = "conv_" + phone
	}
	messageID := msg.MessageID
	if messageID == "" {
		messageID = "msg_" + uuid.NewString()
	}

	key := msg.TenantID + "|" + conversationID
	p.mu.Lock()
	p.meta[key] = conversationMeta{tenantID: msg.TenantID, conversationID: conversationID, phone: phone}
	p.mu.Unlock()

	if p.coalescer.Offer(key, messageID, msg.Text) {
		slog.Debug("Processor.Handle: message joined burst", "tenantID", msg.TenantID,
			"conversationID", conversationID, "messageID", messageID)
		return OutcomeQueued, nil
	}

	p.submit(key, []dedup.QueuedMessage{{MessageID: messageID, Text: msg.Text}})
	return OutcomeAccepted, nil
}

// drainBatch receives a coalesced burst from the timer goroutine.
func (p *Processor) drainBatch(key string, batch []dedup.QueuedMessage) {
	p.submit(key, batch)
}

func (p *Processor) submit(key string, batch []dedup.QueuedMessage) {
	p.group.Go(func() error {
		p.processBatch(key, batch)
		return nil
	})
}

// processBatch runs one turn for a batch of messages. The batch is treated
// as a single customer utterance: texts joined in arrival order, identity
// taken from the last message.
func (p *Processor) processBatch(key string, batch []dedup.QueuedMessage) {
	if len(batch) == 0 {
		return
	}
	p.mu.Lock()
	meta, ok := p.meta[key]
	p.mu.Unlock()
	if !ok {
		slog.Error("Processor.processBatch: no metadata for conversation key", "key", key)
		return
	}

	texts := make([]string, len(batch))
	for i, m := range batch {
		texts[i] = m.Text
	}
	text := strings.Join(texts, "\n")
	messageID := batch[len(batch)-1].MessageID

	// The webhook request is long gone; the turn gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), TurnTimeout)
	defer cancel()

	fingerprint := dedup.Fingerprint(meta.conversationID, messageID, text)
	if dup, err := p.lock.IsDuplicate(ctx, fingerprint); err != nil {
		slog.Warn("Processor.processBatch: duplicate check failed, continuing", "error", err)
	} else if dup {
		slog.Info("Processor.processBatch: duplicate message skipped",
			"tenantID", meta.tenantID, "conversationID", meta.conversationID, "fingerprint", fingerprint)
		return
	}
	if err := p.lock.Acquire(ctx, fingerprint); err != nil {
		var held *models.LockHeldError
		if errors.As(err, &held) {
			record, _, _ := p.lock.Holder(ctx, fingerprint)
			slog.Info("Processor.processBatch: lock held elsewhere, skipping",
				"fingerprint", fingerprint, "holder", record.Owner, "acquiredAt", record.AcquiredAt)
			return
		}
		slog.Error("Processor.processBatch: lock acquire failed", "error", err, "fingerprint", fingerprint)
		return
	}

	state, err := p.runner.ProcessTurn(ctx, flow.TurnRequest{
		TenantID:       meta.tenantID,
		ConversationID: meta.conversationID,
		MessageText:    text,
		Phone:          phonePlus(meta.phone),
	})
	if err != nil {
		slog.Error("Processor.processBatch: turn failed", "error", err,
			"tenantID", meta.tenantID, "conversationID", meta.conversationID)
		if relErr := p.lock.Release(ctx, fingerprint, dedup.StatusFailed); relErr != nil {
			slog.Error("Processor.processBatch: lock release failed", "error", relErr)
		}
		return
	}

	if state.ResponseText != "" && meta.phone != "" {
		if err := p.sender.SendMessage(ctx, meta.phone, state.ResponseText); err != nil {
			slog.Error("Processor.processBatch: reply delivery failed", "error", err,
				"tenantID", meta.tenantID, "conversationID", meta.conversationID)
		}
	}

	if err := p.lock.Release(ctx, fingerprint, dedup.StatusCompleted); err != nil {
		slog.Error("Processor.processBatch: lock release failed", "error", err, "fingerprint", fingerprint)
	}
}

// Close flushes pending bursts and waits for in-flight turns.
func (p *Processor) Close() error {
	p.coalescer.Flush()
	return p.group.Wait()
}

func phonePlus(digits string) string {
	if digits == "" {
		return ""
	}
	return "+" + digits
}

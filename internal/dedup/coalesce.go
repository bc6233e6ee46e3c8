// Package dedup implements burst coalescing for rapid successive messages.
package dedup

import (
	"log/slog"
	"sync"
	"time"
)

// BurstWindow is the quiet period required before a coalesced batch drains.
// A message arriving within this window of the previous inbound message in
// the same conversation is queued instead of processed immediately.
const BurstWindow = 5 * time.Second

// QueuedMessage is one coalesced inbound message.
type QueuedMessage struct {
	MessageID  string
	Text       string
	ReceivedAt time.Time
}

// DrainFunc processes a coalesced batch as one logical turn, in FIFO order.
type DrainFunc func(conversationID string, messages []QueuedMessage)

type conversationQueue struct {
	messages    []QueuedMessage
	lastArrival time.Time
	timer       *time.Timer
}

// BurstCoalescer queues rapid-fire messages per conversation and drains
// them once the conversation has been quiet for a full BurstWindow.
type BurstCoalescer struct {
	mu     sync.Mutex
	window time.Duration
	queues map[string]*conversationQueue
	drain  DrainFunc
	now    func() time.Time
}

// NewBurstCoalescer creates a coalescer that hands quiet batches to drain.
func NewBurstCoalescer(drain DrainFunc) *BurstCoalescer {
	return &BurstCoalescer{
		window: BurstWindow,
		queues: make(map[string]*conversationQueue),
		drain:  drain,
		now:    time.Now,
	}
}

// SetWindow overrides the quiet window (for tests).
func (c *BurstCoalescer) SetWindow(window time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = window
}

// SetClock overrides the clock used for arrival spacing (for tests).
func (c *BurstCoalescer) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Offer presents a new inbound message. It returns true when the message was
// queued for batch processing; false means the caller should process the
// message immediately.
func (c *BurstCoalescer) Offer(conversationID, messageID, text string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	arrived := c.now()
	q, exists := c.queues[conversationID]
	if !exists {
		q = &conversationQueue{lastArrival: arrived}
		c.queues[conversationID] = q
		// The timer also reclaims the entry once the conversation goes quiet,
		// so idle conversations do not accumulate in the map.
		c.scheduleDrainLocked(conversationID, q)
		return false
	}

	sincePrevious := arrived.Sub(q.lastArrival)
	q.lastArrival = arrived

	if len(q.messages) == 0 && sincePrevious >= c.window {
		// Quiet conversation; process inline.
		c.scheduleDrainLocked(conversationID, q)
		return false
	}

	q.messages = append(q.messages, QueuedMessage{MessageID: messageID, Text: text, ReceivedAt: arrived})
	slog.Debug("BurstCoalescer.Offer: message queued", "conversationID", conversationID, "queued", len(q.messages), "sincePrevious", sincePrevious)
	c.scheduleDrainLocked(conversationID, q)
	return true
}

// scheduleDrainLocked (re)arms the delayed batch job for a conversation.
// Must be called with c.mu held.
func (c *BurstCoalescer) scheduleDrainLocked(conversationID string, q *conversationQueue) {
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(c.window, func() {
		c.tryDrain(conversationID)
	})
}

// tryDrain drains the queue if the conversation has been quiet for a full
// window; otherwise it re-arms the timer for the remaining quiet time. A
// quiet conversation's entry is removed entirely, queued or not, so the map
// only holds conversations that spoke within the last window.
func (c *BurstCoalescer) tryDrain(conversationID string) {
	c.mu.Lock()
	q, exists := c.queues[conversationID]
	if !exists {
		c.mu.Unlock()
		return
	}
	quietFor := c.now().Sub(q.lastArrival)
	if quietFor < c.window {
		remaining := c.window - quietFor
		q.timer = time.AfterFunc(remaining, func() {
			c.tryDrain(conversationID)
		})
		c.mu.Unlock()
		return
	}
	batch := q.messages
	delete(c.queues, conversationID)
	c.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	slog.Info("BurstCoalescer.tryDrain: draining batch", "conversationID", conversationID, "count", len(batch))
	c.drain(conversationID, batch)
}

// Flush synchronously drains every queued batch regardless of quiet time.
// Used on shutdown so queued messages are not lost.
func (c *BurstCoalescer) Flush() {
	c.mu.Lock()
	type pending struct {
		conversationID string
		messages       []QueuedMessage
	}
	var batches []pending
	for id, q := range c.queues {
		if q.timer != nil {
			q.timer.Stop()
		}
		if len(q.messages) > 0 {
			batches = append(batches, pending{conversationID: id, messages: q.messages})
		}
	}
	c.queues = make(map[string]*conversationQueue)
	c.mu.Unlock()

	for _, b := range batches {
		c.drain(b.conversationID, b.messages)
	}
}

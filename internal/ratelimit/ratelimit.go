// Package ratelimit implements the (tenant, customer) cooldown limiter on
// the shared KV store.
//
// Cooldowns are plain TTL records set atomically; strike counters use the
// store's atomic increment so concurrent workers never race on counts.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sokoflow/sokoflow/internal/store"
)

// Cooldown durations.
const (
	// SpamCooldownTTL throttles a customer after a spam disengage.
	SpamCooldownTTL = 1 * time.Hour
	// AbuseCooldownTTL throttles a customer after abusive content.
	AbuseCooldownTTL = 24 * time.Hour
	// StrikeWindowTTL bounds how long strike counters accumulate.
	StrikeWindowTTL = 7 * 24 * time.Hour
)

// CooldownLimiter implements governance.RateLimiter on a KV store.
type CooldownLimiter struct {
	kv store.KV
}

// NewCooldownLimiter creates a limiter backed by the given KV store.
func NewCooldownLimiter(kv store.KV) *CooldownLimiter {
	return &CooldownLimiter{kv: kv}
}

// CheckRateLimit reports whether the customer has a live spam or abuse
// cooldown.
func (l *CooldownLimiter) CheckRateLimit(ctx context.Context, tenantID, customerID string) (bool, error) {
	for _, kind := range []string{"spam", "abuse"} {
		_, found, err := l.kv.Get(ctx, cooldownKey(kind, tenantID, customerID))
		if err != nil {
			return false, fmt.Errorf("failed to check %s cooldown: %w", kind, err)
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

// ApplySpamCooldown throttles the customer for the spam cooldown window.
// Re-applying during a live cooldown is a no-op.
func (l *CooldownLimiter) ApplySpamCooldown(ctx context.Context, tenantID, customerID string) error {
	return l.apply(ctx, "spam", tenantID, customerID, SpamCooldownTTL)
}

// ApplyAbuseCooldown throttles the customer for the abuse cooldown window.
// Re-applying during a live cooldown is a no-op.
func (l *CooldownLimiter) ApplyAbuseCooldown(ctx context.Context, tenantID, customerID string) error {
	return l.apply(ctx, "abuse", tenantID, customerID, AbuseCooldownTTL)
}

func (l *CooldownLimiter) apply(ctx context.Context, kind, tenantID, customerID string, ttl time.Duration) error {
	key := cooldownKey(kind, tenantID, customerID)
	stored, err := l.kv.SetIfAbsent(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl)
	if err != nil {
		return fmt.Errorf("failed to apply %s cooldown: %w", kind, err)
	}
	if !stored {
		slog.Debug("CooldownLimiter.apply: cooldown already live", "kind", kind, "tenantID", tenantID)
		return nil
	}

	strikes, err := l.kv.Increment(ctx, strikeKey(kind, tenantID, customerID), StrikeWindowTTL)
	if err != nil {
		// Strike counting is observability only; the cooldown itself is set.
		slog.Warn("CooldownLimiter.apply: strike increment failed", "error", err, "kind", kind, "tenantID", tenantID)
		return nil
	}
	slog.Info("CooldownLimiter.apply: cooldown applied", "kind", kind, "tenantID", tenantID, "strikes", strikes)
	return nil
}

// Strikes returns the live strike count for a customer and cooldown kind.
func (l *CooldownLimiter) Strikes(ctx context.Context, kind, tenantID, customerID string) (int64, error) {
	value, found, err := l.kv.Get(ctx, strikeKey(kind, tenantID, customerID))
	if err != nil || !found {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
		return 0, nil
	}
	return n, nil
}

func cooldownKey(kind, tenantID, customerID string) string {
	return fmt.Sprintf("cooldown:%s:%s:%s", kind, tenantID, customerID)
}

func strikeKey(kind, tenantID, customerID string) string {
	return fmt.Sprintf("strikes:%s:%s:%s", kind, tenantID, customerID)
}

// Package ledger tracks estimated AI spend per provider per calendar day and
// enforces the configured daily ceiling.
package ledger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// charsPerToken approximates token count from character length. The resulting
// figures are heuristic estimates, not billing-accurate amounts.
const charsPerToken = 4

type bucket struct {
	provider string
	date     string // YYYY-MM-DD
}

type CostLedger struct {
	mu         sync.Mutex
	totals     map[bucket]float64
	dailyLimit float64
	rdb        *redis.Client // optional mirror, may be nil
	clock      func() time.Time
}

// New creates a CostLedger with the given daily limit in USD.
// rdb may be nil; when set, recorded costs are mirrored to a per-day redis
// key for observability across restarts. The in-memory totals remain
// authoritative for the limit check.
func New(dailyLimit float64, rdb *redis.Client) *CostLedger {
	return &CostLedger{
		totals:     make(map[bucket]float64),
		dailyLimit: dailyLimit,
		rdb:        rdb,
		clock:      time.Now,
	}
}

// EstimateCost approximates the cost of generating a response to prompt at
// the provider's per-1k-token rate. Both the prompt and an assumed
// same-length response count toward the estimate.
func EstimateCost(prompt string, ratePer1K float64) float64 {
	tokens := float64(len(prompt)*2) / charsPerToken
	return tokens / 1000 * ratePer1K
}

// RecordCost accumulates amount into the (provider, today) bucket.
func (l *CostLedger) RecordCost(ctx context.Context, provider string, amount float64) {
	day := l.clock().Format("2006-01-02")

	l.mu.Lock()
	l.totals[bucket{provider: provider, date: day}] += amount
	l.mu.Unlock()

	if l.rdb != nil {
		key := "ai_cost:" + provider + ":" + day
		if err := l.rdb.IncrByFloat(ctx, key, amount).Err(); err != nil {
			slog.DebugContext(ctx, "redis cost mirror failed", "error", err)
		} else {
			// Past-day keys are irrelevant to the limit; let redis reap them.
			l.rdb.Expire(ctx, key, 48*time.Hour)
		}
	}
}

// TotalForToday sums today's buckets across all providers.
func (l *CostLedger) TotalForToday() float64 {
	day := l.clock().Format("2006-01-02")

	l.mu.Lock()
	defer l.mu.Unlock()

	var total float64
	for b, amount := range l.totals {
		if b.date == day {
			total += amount
		}
	}
	return total
}

// TotalForProvider sums today's spend for a single provider.
func (l *CostLedger) TotalForProvider(provider string) float64 {
	day := l.clock().Format("2006-01-02")

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.totals[bucket{provider: provider, date: day}]
}

// IsBelowLimit reports whether new generation calls are permitted. Cached
// responses are exempt from this check.
func (l *CostLedger) IsBelowLimit() bool {
	return l.TotalForToday() < l.dailyLimit
}

// DailyLimit returns the configured ceiling.
func (l *CostLedger) DailyLimit() float64 {
	return l.dailyLimit
}

// SetClock overrides the time source. Test hook.
func (l *CostLedger) SetClock(clock func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clock = clock
}

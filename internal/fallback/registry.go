package fallback

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"therapath.app/insight/common/llm"
)

// Entry pairs a provider with its walk priority and its per-1k-token rate.
// The availability flag is refreshed by the health loop and by every probe
// the executor makes during a fallback walk.
type Entry struct {
	Provider llm.Provider
	Priority int // ascending = tried first
	Rate     float64

	available atomic.Bool
}

// Available reports the last known probe result.
func (e *Entry) Available() bool {
	return e.available.Load()
}

// Registry is the ordered list of registered AI providers. Providers are
// registered once at startup and never removed, only marked unavailable.
type Registry struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a provider. Registration order does not matter; Entries
// always returns providers in ascending priority order.
func (r *Registry) Register(p llm.Provider, priority int, rate float64) {
	e := &Entry{Provider: p, Priority: priority, Rate: rate}
	e.available.Store(true) // assume reachable until a probe says otherwise

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].Priority < r.entries[j].Priority
	})
}

// Entries returns the providers in walk order.
func (r *Registry) Entries() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the number of registered providers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// RefreshAvailability probes every provider, bounding each probe by timeout,
// and updates the availability flags.
func (r *Registry) RefreshAvailability(ctx context.Context, timeout time.Duration) {
	for _, e := range r.Entries() {
		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := e.Provider.IsAvailable(probeCtx)
		cancel()

		healthy := err == nil
		was := e.available.Swap(healthy)
		if was != healthy {
			slog.InfoContext(ctx, "provider availability changed",
				"provider", e.Provider.Name(),
				"available", healthy,
				"error", err)
		}
	}
}

// RunHealthLoop refreshes availability on the given interval until ctx is
// cancelled. Run it from a dedicated goroutine in the worker.
func (r *Registry) RunHealthLoop(ctx context.Context, interval, probeTimeout time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshAvailability(ctx, probeTimeout)
		}
	}
}

// Package fallback resolves a prompt against an ordered list of AI providers,
// consulting the response cache and the cost ledger. The walk is sequential:
// only the most-preferred provider that actually succeeds is paid for, and
// the response is deterministic rather than race-dependent.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"therapath.app/insight/common/llm"
	"therapath.app/insight/common/logger"
	"therapath.app/insight/internal/cache"
	"therapath.app/insight/internal/ledger"
)

// ProviderUsedStaleCache is reported when a response came from an expired
// cache entry after generation was refused or every provider failed.
const ProviderUsedStaleCache = "cache (stale)"

// ProviderUsedCache is reported on a fresh cache hit.
const ProviderUsedCache = "cache"

type Config struct {
	ProbeTimeout    time.Duration // isAvailable budget
	GenerateTimeout time.Duration // generateResponse budget
}

// Options control one resolution.
type Options struct {
	Generate  llm.Options
	Namespace string // cache namespace, usually the task type
	SkipCache bool   // bypass the cache-first read (response is still written back)
}

// Result is the outcome of a resolution.
type Result struct {
	Response     string
	ProviderUsed string
	FromCache    bool
}

type Executor struct {
	registry *Registry
	cache    *cache.ResponseCache
	ledger   *ledger.CostLedger
	cfg      Config
}

func NewExecutor(registry *Registry, respCache *cache.ResponseCache, costLedger *ledger.CostLedger, cfg Config) *Executor {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 60 * time.Second
	}
	return &Executor{
		registry: registry,
		cache:    respCache,
		ledger:   costLedger,
		cfg:      cfg,
	}
}

// GenerateWithFallback resolves prompt against the registered providers in
// ascending priority order:
//
//  1. A fresh cache entry satisfies the request immediately.
//  2. If the daily cost ceiling is reached, a cached entry (even stale) is
//     returned; otherwise the call fails with ErrCostLimitExceeded without
//     touching any provider.
//  3. Each provider is probed under a short timeout and, if reachable, asked
//     to generate under a longer one. The first success is recorded against
//     the ledger, written to the cache, and returned.
//  4. If every provider fails, a stale cache entry is the last resort;
//     failing that, the aggregated per-provider failure reasons are returned.
func (x *Executor) GenerateWithFallback(ctx context.Context, prompt string, opts Options) (*Result, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "insight.fallback.executor",
	})
	slog.DebugContext(ctx, "resolving prompt",
		"namespace", opts.Namespace,
		"prompt", logger.Truncate(prompt, 200))

	key := cache.Key(opts.Namespace, prompt)

	if !opts.SkipCache {
		resp, fresh, ok := x.cache.Lookup(key)
		if ok && fresh {
			slog.DebugContext(ctx, "cache hit", "namespace", opts.Namespace)
			return &Result{Response: resp, ProviderUsed: ProviderUsedCache, FromCache: true}, nil
		}
		if !ok {
			// No local entry at all; the redis second level may still have one.
			if resp, found := x.cache.Get(ctx, key); found {
				return &Result{Response: resp, ProviderUsed: ProviderUsedCache, FromCache: true}, nil
			}
		}
		// A stale local entry is left in place as a last-resort fallback.
	}

	if !x.ledger.IsBelowLimit() {
		if resp, _, ok := x.cache.Lookup(key); ok {
			slog.WarnContext(ctx, "cost limit reached, serving cached response",
				"total_today", x.ledger.TotalForToday(),
				"limit", x.ledger.DailyLimit())
			return &Result{Response: resp, ProviderUsed: ProviderUsedStaleCache, FromCache: true}, nil
		}
		slog.WarnContext(ctx, "cost limit reached, refusing generation",
			"total_today", x.ledger.TotalForToday(),
			"limit", x.ledger.DailyLimit())
		return nil, ErrCostLimitExceeded
	}

	var failures []ProviderFailure

	for _, entry := range x.registry.Entries() {
		name := entry.Provider.Name()
		ctx := logger.WithLogFields(ctx, logger.LogFields{Provider: logger.Ptr(name)})

		if err := x.probe(ctx, entry); err != nil {
			entry.available.Store(false)
			// A probe timeout still counts as unavailable.
			failures = append(failures, ProviderFailure{Provider: name, Kind: failureUnavailable, Err: err})
			slog.WarnContext(ctx, "provider unavailable, falling back", "error", err)
			continue
		}
		entry.available.Store(true)

		resp, err := x.generate(ctx, entry, prompt, opts.Generate)
		if err != nil {
			failures = append(failures, classify(name, failureError, err))
			slog.WarnContext(ctx, "generation failed, falling back", "error", err)
			continue
		}

		cost := ledger.EstimateCost(prompt, entry.Rate)
		x.ledger.RecordCost(ctx, name, cost)
		x.cache.Set(ctx, key, resp)

		slog.InfoContext(ctx, "generation succeeded",
			"estimated_cost_usd", cost,
			"response_len", len(resp))

		return &Result{Response: resp, ProviderUsed: name, FromCache: false}, nil
	}

	if resp, _, ok := x.cache.Lookup(key); ok {
		slog.WarnContext(ctx, "all providers failed, serving stale cached response")
		return &Result{Response: resp, ProviderUsed: ProviderUsedStaleCache, FromCache: true}, nil
	}

	return nil, &AllProvidersFailedError{Failures: failures}
}

// GenerateWith runs one generation against a single named provider entry,
// applying the same cost gate, probe and generation budgets, and ledger
// recording as the fallback walk. Callers that fan out to several providers
// and combine results themselves use this instead of GenerateWithFallback.
// The response is not written to the cache.
func (x *Executor) GenerateWith(ctx context.Context, entry *Entry, prompt string, opts llm.Options) (string, error) {
	name := entry.Provider.Name()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "insight.fallback.executor",
		Provider:  logger.Ptr(name),
	})
	slog.DebugContext(ctx, "resolving prompt", "prompt", logger.Truncate(prompt, 200))

	if !x.ledger.IsBelowLimit() {
		return "", ErrCostLimitExceeded
	}

	if err := x.probe(ctx, entry); err != nil {
		entry.available.Store(false)
		return "", ProviderFailure{Provider: name, Kind: failureUnavailable, Err: err}
	}
	entry.available.Store(true)

	resp, err := x.generate(ctx, entry, prompt, opts)
	if err != nil {
		return "", classify(name, failureError, err)
	}

	cost := ledger.EstimateCost(prompt, entry.Rate)
	x.ledger.RecordCost(ctx, name, cost)

	slog.InfoContext(ctx, "generation succeeded",
		"estimated_cost_usd", cost,
		"response_len", len(resp))

	return resp, nil
}

// Registry exposes the provider list for callers that combine results from
// several providers themselves.
func (x *Executor) Registry() *Registry {
	return x.registry
}

func (x *Executor) probe(ctx context.Context, entry *Entry) error {
	probeCtx, cancel := context.WithTimeout(ctx, x.cfg.ProbeTimeout)
	defer cancel()
	return entry.Provider.IsAvailable(probeCtx)
}

func (x *Executor) generate(ctx context.Context, entry *Entry, prompt string, opts llm.Options) (string, error) {
	sc := logger.StartSpan(ctx, "llm.generate")
	defer sc.End()

	genCtx, cancel := context.WithTimeout(sc.Context(), x.cfg.GenerateTimeout)
	defer cancel()
	resp, err := entry.Provider.GenerateResponse(genCtx, prompt, opts)
	sc.RecordError(err)
	return resp, err
}

func classify(provider, kind string, err error) ProviderFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		kind = failureTimeout
		err = fmt.Errorf("call exceeded time budget: %w", err)
	}
	return ProviderFailure{Provider: provider, Kind: kind, Err: err}
}

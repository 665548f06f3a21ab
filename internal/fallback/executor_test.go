package fallback_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"therapath.app/insight/common/llm"
	"therapath.app/insight/internal/cache"
	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/ledger"
)

var _ = Describe("Executor", func() {
	var (
		ctx        context.Context
		registry   *fallback.Registry
		respCache  *cache.ResponseCache
		costLedger *ledger.CostLedger
		executor   *fallback.Executor
	)

	newExecutor := func(dailyLimit float64) {
		respCache = cache.New(cache.Config{TTL: time.Hour, Capacity: 10}, nil)
		costLedger = ledger.New(dailyLimit, nil)
		executor = fallback.NewExecutor(registry, respCache, costLedger, fallback.Config{
			ProbeTimeout:    100 * time.Millisecond,
			GenerateTimeout: 200 * time.Millisecond,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		registry = fallback.NewRegistry()
	})

	opts := func() fallback.Options {
		return fallback.Options{Namespace: "session-note-analysis"}
	}

	Describe("fallback order", func() {
		It("returns the first healthy provider's response", func() {
			a := &mockProvider{name: "a", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "from a", nil
			}}
			b := &mockProvider{name: "b"}
			registry.Register(a, 1, 0.002)
			registry.Register(b, 2, 0.003)
			newExecutor(5)

			res, err := executor.GenerateWithFallback(ctx, "analyze this", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal("from a"))
			Expect(res.ProviderUsed).To(Equal("a"))
			Expect(res.FromCache).To(BeFalse())
			Expect(b.probeCalls.Load()).To(BeZero(), "walk stops at first success")
		})

		It("falls through failing providers to the third", func() {
			a := &mockProvider{name: "a", isAvailableFn: func(context.Context) error {
				return errors.New("401 unauthorized")
			}}
			b := &mockProvider{name: "b", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "", errors.New("rate limited")
			}}
			c := &mockProvider{name: "c", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "from c", nil
			}}
			registry.Register(a, 1, 0.002)
			registry.Register(b, 2, 0.003)
			registry.Register(c, 3, 0.001)
			newExecutor(5)

			res, err := executor.GenerateWithFallback(ctx, "analyze this", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ProviderUsed).To(Equal("c"))
			Expect(a.generateCalls.Load()).To(BeZero(), "unavailable providers are never asked to generate")
		})

		It("marks a probe timeout as unavailable and moves on", func() {
			slow := &mockProvider{name: "slow", isAvailableFn: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}}
			fast := &mockProvider{name: "fast", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "from fast", nil
			}}
			registry.Register(slow, 1, 0.002)
			registry.Register(fast, 2, 0.001)
			newExecutor(5)

			res, err := executor.GenerateWithFallback(ctx, "analyze this", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.ProviderUsed).To(Equal("fast"))
			Expect(registry.Entries()[0].Available()).To(BeFalse())
		})
	})

	Describe("aggregated failure", func() {
		It("reports every provider's failure reason", func() {
			a := &mockProvider{name: "a", isAvailableFn: func(context.Context) error {
				return errors.New("invalid api key")
			}}
			b := &mockProvider{name: "b", generateFn: func(ctx context.Context, _ string, _ llm.Options) (string, error) {
				<-ctx.Done()
				return "", ctx.Err()
			}}
			registry.Register(a, 1, 0.002)
			registry.Register(b, 2, 0.003)
			newExecutor(5)

			_, err := executor.GenerateWithFallback(ctx, "analyze this", opts())

			var all *fallback.AllProvidersFailedError
			Expect(errors.As(err, &all)).To(BeTrue())
			Expect(all.Failures).To(HaveLen(2))
			Expect(all.Failures[0].Kind).To(Equal("unavailable"))
			Expect(all.Failures[1].Kind).To(Equal("timeout"))
			Expect(err.Error()).To(ContainSubstring("invalid api key"))
		})

		It("does not hang past the configured timeouts with a single stuck provider", func() {
			stuck := &mockProvider{
				name: "stuck",
				generateFn: func(ctx context.Context, _ string, _ llm.Options) (string, error) {
					<-ctx.Done()
					return "", ctx.Err()
				},
			}
			registry.Register(stuck, 1, 0.002)
			newExecutor(5)

			start := time.Now()
			_, err := executor.GenerateWithFallback(ctx, "analyze this", opts())
			Expect(err).To(HaveOccurred())
			Expect(time.Since(start)).To(BeNumerically("<", time.Second))
		})
	})

	Describe("cache behavior", func() {
		var provider *mockProvider

		BeforeEach(func() {
			provider = &mockProvider{name: "a", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "generated once", nil
			}}
			registry.Register(provider, 1, 0.002)
			newExecutor(5)
		})

		It("serves the second identical prompt from cache without spending", func() {
			first, err := executor.GenerateWithFallback(ctx, "same prompt", opts())
			Expect(err).NotTo(HaveOccurred())
			spent := costLedger.TotalForToday()
			Expect(spent).To(BeNumerically(">", 0))

			second, err := executor.GenerateWithFallback(ctx, "same prompt", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Response).To(Equal(first.Response))
			Expect(second.FromCache).To(BeTrue())
			Expect(second.ProviderUsed).To(Equal(fallback.ProviderUsedCache))
			Expect(costLedger.TotalForToday()).To(Equal(spent), "cache hits never touch the ledger")
			Expect(provider.generateCalls.Load()).To(Equal(int32(1)))
		})

		It("serves a stale entry when every provider fails", func() {
			pin := time.Now()
			respCache.SetClock(func() time.Time { return pin })
			_, err := executor.GenerateWithFallback(ctx, "same prompt", opts())
			Expect(err).NotTo(HaveOccurred())

			// Entry ages past TTL and the provider starts failing.
			respCache.SetClock(func() time.Time { return pin.Add(2 * time.Hour) })
			provider.generateFn = func(context.Context, string, llm.Options) (string, error) {
				return "", errors.New("outage")
			}

			res, err := executor.GenerateWithFallback(ctx, "same prompt", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal("generated once"))
			Expect(res.FromCache).To(BeTrue())
			Expect(res.ProviderUsed).To(Equal(fallback.ProviderUsedStaleCache))
		})
	})

	Describe("cost ceiling", func() {
		It("refuses generation once the daily limit is reached", func() {
			provider := &mockProvider{name: "a"}
			registry.Register(provider, 1, 0.002)
			newExecutor(0.01)
			costLedger.RecordCost(ctx, "a", 0.01)

			_, err := executor.GenerateWithFallback(ctx, "new prompt", opts())
			Expect(err).To(MatchError(fallback.ErrCostLimitExceeded))
			Expect(provider.probeCalls.Load()).To(BeZero(), "no provider is touched")
			Expect(provider.generateCalls.Load()).To(BeZero())
		})

		It("still serves a cached entry at the ceiling", func() {
			provider := &mockProvider{name: "a", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "cached answer", nil
			}}
			registry.Register(provider, 1, 0.002)
			newExecutor(0.01)

			_, err := executor.GenerateWithFallback(ctx, "the prompt", opts())
			Expect(err).NotTo(HaveOccurred())

			costLedger.RecordCost(ctx, "a", 0.01)

			res, err := executor.GenerateWithFallback(ctx, "the prompt", opts())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Response).To(Equal("cached answer"))
			Expect(res.FromCache).To(BeTrue())
		})
	})

	Describe("GenerateWith", func() {
		It("records cost against the chosen provider only", func() {
			a := &mockProvider{name: "a", generateFn: func(context.Context, string, llm.Options) (string, error) {
				return "direct", nil
			}}
			b := &mockProvider{name: "b"}
			registry.Register(a, 1, 0.002)
			registry.Register(b, 2, 0.003)
			newExecutor(5)

			resp, err := executor.GenerateWith(ctx, registry.Entries()[0], "prompt", llm.Options{})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(Equal("direct"))
			Expect(costLedger.TotalForProvider("a")).To(BeNumerically(">", 0))
			Expect(costLedger.TotalForProvider("b")).To(BeZero())
			Expect(b.probeCalls.Load()).To(BeZero())
		})

		It("refuses at the cost ceiling", func() {
			a := &mockProvider{name: "a"}
			registry.Register(a, 1, 0.002)
			newExecutor(0.01)
			costLedger.RecordCost(ctx, "a", 0.02)

			_, err := executor.GenerateWith(ctx, registry.Entries()[0], "prompt", llm.Options{})
			Expect(err).To(MatchError(fallback.ErrCostLimitExceeded))
		})
	})
})

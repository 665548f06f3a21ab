package ledger_test

import (
	"context"
	"strings"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"therapath.app/insight/internal/ledger"
)

var _ = Describe("CostLedger", func() {
	var (
		ctx context.Context
		l   *ledger.CostLedger
		now time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
		l = ledger.New(5.0, nil)
		l.SetClock(func() time.Time { return now })
	})

	Describe("EstimateCost", func() {
		It("derives tokens from prompt length at 4 chars per token, doubled for the response", func() {
			// 4000 chars -> 2000 tokens estimated -> 2k tokens at $0.002/1k
			prompt := strings.Repeat("x", 4000)
			Expect(ledger.EstimateCost(prompt, 0.002)).To(BeNumerically("~", 0.004, 1e-9))
		})

		It("is zero for an empty prompt", func() {
			Expect(ledger.EstimateCost("", 0.002)).To(BeZero())
		})
	})

	Describe("accumulation", func() {
		It("accumulates per provider per day", func() {
			l.RecordCost(ctx, "openai", 0.50)
			l.RecordCost(ctx, "openai", 0.25)
			l.RecordCost(ctx, "anthropic", 1.00)

			Expect(l.TotalForProvider("openai")).To(BeNumerically("~", 0.75, 1e-9))
			Expect(l.TotalForProvider("anthropic")).To(BeNumerically("~", 1.00, 1e-9))
			Expect(l.TotalForToday()).To(BeNumerically("~", 1.75, 1e-9))
		})

		It("excludes past days from today's total", func() {
			l.RecordCost(ctx, "openai", 4.99)

			now = now.AddDate(0, 0, 1)
			Expect(l.TotalForToday()).To(BeZero())
			Expect(l.IsBelowLimit()).To(BeTrue(), "budget resets at midnight")
		})
	})

	Describe("limit check", func() {
		It("permits spend strictly below the limit", func() {
			l.RecordCost(ctx, "openai", 4.99)
			Expect(l.IsBelowLimit()).To(BeTrue())
		})

		It("refuses at and above the limit", func() {
			l.RecordCost(ctx, "openai", 5.0)
			Expect(l.IsBelowLimit()).To(BeFalse())

			l.RecordCost(ctx, "openai", 1.0)
			Expect(l.IsBelowLimit()).To(BeFalse())
		})
	})

	Describe("redis mirror", func() {
		It("mirrors recorded costs to a per-day key", func() {
			mr, err := miniredis.Run()
			Expect(err).NotTo(HaveOccurred())
			defer mr.Close()
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			defer rdb.Close()

			l = ledger.New(5.0, rdb)
			l.SetClock(func() time.Time { return now })
			l.RecordCost(ctx, "openai", 0.5)

			Expect(mr.Get("ai_cost:openai:2026-03-10")).To(Equal("0.5"))
		})
	})
})

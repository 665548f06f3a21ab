package engine_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"therapath.app/insight/internal/engine"
)

// eventRecorder collects published events for assertions.
type eventRecorder struct {
	mu     sync.Mutex
	events []engine.Event
}

func (r *eventRecorder) OnTaskEvent(_ context.Context, ev engine.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *eventRecorder) ofKind(kind engine.EventKind) []engine.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []engine.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

var _ = Describe("Processor", func() {
	var (
		ctx       context.Context
		notifier  *engine.Notifier
		queue     *engine.TaskQueue
		processor *engine.Processor
		recorder  *eventRecorder
	)

	BeforeEach(func() {
		ctx = context.Background()
		notifier = engine.NewNotifier()
		recorder = &eventRecorder{}
		notifier.Subscribe(recorder)
		queue = engine.NewTaskQueue(notifier)
		// Millisecond backoff keeps retry deferrals testable in real time.
		processor = engine.NewProcessor(queue, notifier, engine.ProcessorConfig{
			PollInterval:   5 * time.Millisecond,
			RetryBaseDelay: time.Millisecond,
		})
	})

	It("returns false on an empty queue", func() {
		Expect(processor.ProcessOne(ctx)).To(BeFalse())
	})

	It("executes the handler and publishes taskCompleted", func() {
		var handled []engine.TaskType
		processor.RegisterHandler(engine.TaskTypeSessionNoteAnalysis,
			engine.HandlerFunc(func(_ context.Context, task engine.Task) error {
				handled = append(handled, task.Type)
				return nil
			}))

		Expect(queue.Enqueue(ctx, &engine.Task{
			Type:     engine.TaskTypeSessionNoteAnalysis,
			Priority: engine.PriorityNormal,
		})).To(Succeed())

		Expect(processor.ProcessOne(ctx)).To(BeTrue())
		Expect(handled).To(ConsistOf(engine.TaskTypeSessionNoteAnalysis))
		Expect(recorder.ofKind(engine.EventTaskCompleted)).To(HaveLen(1))
	})

	It("treats a missing handler as a task failure, not a crash", func() {
		Expect(queue.Enqueue(ctx, &engine.Task{
			Type:     engine.TaskTypeDocumentAnalysis,
			Priority: engine.PriorityNormal,
		})).To(Succeed())

		Expect(processor.ProcessOne(ctx)).To(BeTrue())
		Expect(recorder.ofKind(engine.EventTaskCompleted)).To(BeEmpty())
	})

	It("recovers a panicking handler and applies the failure path", func() {
		processor.RegisterHandler(engine.TaskTypeDocumentAnalysis,
			engine.HandlerFunc(func(context.Context, engine.Task) error {
				panic("handler bug")
			}))

		Expect(queue.Enqueue(ctx, &engine.Task{
			Type:       engine.TaskTypeDocumentAnalysis,
			Priority:   engine.PriorityNormal,
			MaxRetries: 0,
		})).To(Succeed())

		Expect(func() { processor.ProcessOne(ctx) }).NotTo(Panic())

		failed := recorder.ofKind(engine.EventTaskFailed)
		Expect(failed).To(HaveLen(1))
		Expect(failed[0].Err).To(MatchError(ContainSubstring("panic")))
	})

	Describe("retry ceiling", func() {
		var attempts atomic.Int32

		BeforeEach(func() {
			attempts.Store(0)
			processor.RegisterHandler(engine.TaskTypeSessionNoteAnalysis,
				engine.HandlerFunc(func(context.Context, engine.Task) error {
					attempts.Add(1)
					return errors.New("provider exploded")
				}))
		})

		It("makes exactly maxRetries+1 attempts then emits one taskFailed", func() {
			Expect(queue.Enqueue(ctx, &engine.Task{
				Type:       engine.TaskTypeSessionNoteAnalysis,
				Priority:   engine.PriorityNormal,
				MaxRetries: 2,
			})).To(Succeed())

			runCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = processor.Run(runCtx)
			}()

			Eventually(func() int {
				return len(recorder.ofKind(engine.EventTaskFailed))
			}, "3s", "10ms").Should(Equal(1))
			Expect(attempts.Load()).To(Equal(int32(3)), "initial attempt plus two retries")

			Consistently(func() int32 { return attempts.Load() }, "100ms", "10ms").
				Should(Equal(int32(3)), "no fourth attempt")

			processor.Stop()
			Eventually(done).Should(BeClosed())

			failed := recorder.ofKind(engine.EventTaskFailed)
			Expect(failed[0].Err).To(MatchError(ContainSubstring("provider exploded")))
			Expect(failed[0].Task.RetryCount).To(Equal(3))
		})

		It("defers each retry instead of re-running immediately", func() {
			Expect(queue.Enqueue(ctx, &engine.Task{
				Type:       engine.TaskTypeSessionNoteAnalysis,
				Priority:   engine.PriorityNormal,
				MaxRetries: 2,
			})).To(Succeed())

			Expect(processor.ProcessOne(ctx)).To(BeTrue())
			Expect(attempts.Load()).To(Equal(int32(1)))
			// The retry sits behind a backoff timer, not in the queue.
			Expect(queue.Len()).To(BeZero())

			Eventually(queue.Len, "1s", "5ms").Should(Equal(1))
		})
	})
})

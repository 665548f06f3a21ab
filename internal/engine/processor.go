package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"therapath.app/insight/common/logger"
)

// Handler executes one task type: it builds the prompt from the payload plus
// whatever context it needs from storage, resolves it through the fallback
// executor, and persists the result.
type Handler interface {
	Handle(ctx context.Context, task Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, task Task) error

func (f HandlerFunc) Handle(ctx context.Context, task Task) error {
	return f(ctx, task)
}

type ProcessorConfig struct {
	PollInterval   time.Duration // queue check cadence
	RetryBaseDelay time.Duration // backoff = 2^retryCount * base
}

// Processor is the serial consumer of the task queue. It never runs two
// tasks concurrently: the tick loop executes one task to completion before
// looking at the queue again, bounding concurrent load on providers and the
// database.
type Processor struct {
	queue    *TaskQueue
	notifier *Notifier
	cfg      ProcessorConfig
	clock    func() time.Time

	mu       sync.Mutex
	handlers map[TaskType]Handler

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewProcessor(queue *TaskQueue, notifier *Notifier, cfg ProcessorConfig) *Processor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 30 * time.Second
	}
	return &Processor{
		queue:     queue,
		notifier:  notifier,
		cfg:       cfg,
		clock:     time.Now,
		handlers:  make(map[TaskType]Handler),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// RegisterHandler binds a handler to a task type. Call before Run.
func (p *Processor) RegisterHandler(t TaskType, h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[t] = h
}

// Run drains the queue until ctx is cancelled or Stop is called.
func (p *Processor) Run(ctx context.Context) error {
	defer close(p.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "insight.engine.processor",
	})
	slog.InfoContext(ctx, "queue processor started", "poll_interval", p.cfg.PollInterval)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stopCh:
			slog.InfoContext(ctx, "queue processor stopping")
			return nil
		case <-ticker.C:
			// ProcessOne returns before the next tick is considered, so
			// two tasks never overlap.
			for p.ProcessOne(ctx) {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-p.stopCh:
					slog.InfoContext(ctx, "queue processor stopping")
					return nil
				default:
				}
			}
		}
	}
}

// Stop signals the run loop and waits for the in-flight task to finish.
func (p *Processor) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.stoppedCh
}

// ProcessOne dequeues and executes a single task. Returns false when the
// queue was empty. A failing or panicking handler never crashes the loop:
// the task is either re-enqueued with backoff or terminally failed.
func (p *Processor) ProcessOne(ctx context.Context) bool {
	task, ok := p.queue.DequeueNext()
	if !ok {
		return false
	}

	taskType := string(task.Type)
	sc := logger.StartSpan(ctx, "engine.process_task", trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		TaskID:   logger.Ptr(task.ID),
		TaskType: logger.Ptr(taskType),
		ClientID: task.Payload.ClientID,
		Attempt:  logger.Ptr(task.RetryCount + 1),
	})

	slog.InfoContext(ctx, "processing task")

	if err := p.executeSafe(ctx, *task); err != nil {
		sc.RecordError(err)
		p.handleFailure(ctx, task, err)
		return true
	}

	slog.InfoContext(ctx, "task completed")
	p.notifier.publish(ctx, Event{
		Kind: EventTaskCompleted,
		Task: *task,
		At:   p.clock(),
	})
	return true
}

func (p *Processor) executeSafe(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in task handler", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	p.mu.Lock()
	handler, ok := p.handlers[task.Type]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("no handler registered for task type %q", task.Type)
	}

	return handler.Handle(ctx, task)
}

func (p *Processor) handleFailure(ctx context.Context, task *Task, err error) {
	task.RetryCount++

	if task.RetryCount <= task.MaxRetries {
		delay := p.backoff(task.RetryCount)
		at := p.clock().Add(delay)
		task.ScheduledFor = &at

		slog.WarnContext(ctx, "task failed, retrying with backoff",
			"error", err,
			"retry_count", task.RetryCount,
			"max_retries", task.MaxRetries,
			"retry_in", delay)

		if enqErr := p.queue.Enqueue(ctx, task); enqErr != nil {
			slog.ErrorContext(ctx, "failed to re-enqueue task", "error", enqErr)
		}
		return
	}

	// Terminal: user-visible failure, never silently swallowed.
	slog.ErrorContext(ctx, "task retries exhausted, abandoning",
		"error", err,
		"retry_count", task.RetryCount)

	p.notifier.publish(ctx, Event{
		Kind: EventTaskFailed,
		Task: *task,
		Err:  err,
		At:   p.clock(),
	})
}

func (p *Processor) backoff(retryCount int) time.Duration {
	return time.Duration(1<<retryCount) * p.cfg.RetryBaseDelay
}

// SetClock overrides the time source. Test hook.
func (p *Processor) SetClock(clock func() time.Time) {
	p.clock = clock
}

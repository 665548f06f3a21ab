package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"therapath.app/insight/common/id"
)

// TaskQueue is the in-memory priority queue of pending AI-generation tasks.
// The slice stays priority-sorted at all times via ordered insert; O(n)
// insert is acceptable at expected queue sizes (tens, not millions).
//
// A task with a future ScheduledFor is not inserted; a timer re-submits it
// (with ScheduledFor cleared) once due, so it is invisible to DequeueNext
// until then.
type TaskQueue struct {
	mu       sync.Mutex
	items    []*Task
	notifier *Notifier
	clock    func() time.Time
}

func NewTaskQueue(notifier *Notifier) *TaskQueue {
	return &TaskQueue{
		notifier: notifier,
		clock:    time.Now,
	}
}

// Enqueue submits a task. The ID and CreatedAt are assigned here if unset.
// Emits a taskQueued event when the task actually enters the queue (deferred
// tasks emit once their timer fires).
func (q *TaskQueue) Enqueue(ctx context.Context, task *Task) error {
	if !task.Type.Valid() {
		return fmt.Errorf("unknown task type %q", task.Type)
	}
	if task.ID == 0 {
		task.ID = id.New()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = q.clock()
	}

	if task.ScheduledFor != nil {
		if delay := task.ScheduledFor.Sub(q.clock()); delay > 0 {
			q.deferTask(ctx, task, delay)
			return nil
		}
		task.ScheduledFor = nil
	}

	q.insert(task)

	q.notifier.publish(ctx, Event{
		Kind: EventTaskQueued,
		Task: *task,
		At:   q.clock(),
	})

	slog.DebugContext(ctx, "task enqueued",
		"task_id", task.ID,
		"type", string(task.Type),
		"priority", task.Priority.String(),
		"queue_len", q.Len())

	return nil
}

// DequeueNext removes and returns the head: highest priority, earliest
// inserted among ties. Returns false when the queue is empty.
func (q *TaskQueue) DequeueNext() (*Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Len reports the number of immediately eligible tasks. Deferred tasks are
// not counted until their timer fires.
func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *TaskQueue) insert(task *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	// First entry with numerically greater priority (lower urgency) marks the
	// insertion point; equal priorities keep enqueue order (stable).
	idx := len(q.items)
	for i, existing := range q.items {
		if existing.Priority > task.Priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = task
}

func (q *TaskQueue) deferTask(ctx context.Context, task *Task, delay time.Duration) {
	slog.DebugContext(ctx, "task deferred",
		"task_id", task.ID,
		"type", string(task.Type),
		"delay", delay)

	// No cancellation primitive exists: once armed, the timer will re-submit
	// unless the process exits first.
	time.AfterFunc(delay, func() {
		task.ScheduledFor = nil
		if err := q.Enqueue(context.WithoutCancel(ctx), task); err != nil {
			slog.Error("failed to re-enqueue deferred task",
				"task_id", task.ID,
				"error", err)
		}
	})
}

// SetClock overrides the time source. Test hook.
func (q *TaskQueue) SetClock(clock func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
}

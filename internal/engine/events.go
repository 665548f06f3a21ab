package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type EventKind string

const (
	EventTaskQueued    EventKind = "taskQueued"
	EventTaskCompleted EventKind = "taskCompleted"
	EventTaskFailed    EventKind = "taskFailed"
)

// Event is published to observers at each task lifecycle transition.
// Err is set only for EventTaskFailed.
type Event struct {
	Kind EventKind
	Task Task
	Err  error
	At   time.Time
}

// Listener receives task lifecycle events. Implementations must be fast;
// slow observers delay the processor tick that published the event.
type Listener interface {
	OnTaskEvent(ctx context.Context, ev Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event)

func (f ListenerFunc) OnTaskEvent(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Notifier fans events out to subscribed listeners. A panicking listener is
// isolated: its panic is recovered and logged, and remaining listeners still
// receive the event.
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(l Listener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listeners = append(n.listeners, l)
}

// LogListener is the default observer: one structured log line per lifecycle
// event, at a level matching the event's severity.
func LogListener() Listener {
	return ListenerFunc(func(ctx context.Context, ev Event) {
		attrs := []any{
			"task_id", ev.Task.ID,
			"task_type", string(ev.Task.Type),
			"priority", ev.Task.Priority.String(),
		}
		switch ev.Kind {
		case EventTaskFailed:
			slog.ErrorContext(ctx, "task failed permanently",
				append(attrs, "retries", ev.Task.RetryCount, "error", ev.Err)...)
		case EventTaskCompleted:
			slog.InfoContext(ctx, "task completed", attrs...)
		default:
			slog.DebugContext(ctx, "task queued", attrs...)
		}
	})
}

func (n *Notifier) publish(ctx context.Context, ev Event) {
	n.mu.RLock()
	listeners := make([]Listener, len(n.listeners))
	copy(listeners, n.listeners)
	n.mu.RUnlock()

	for _, l := range listeners {
		deliver(ctx, l, ev)
	}
}

func deliver(ctx context.Context, l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in event listener",
				"panic", r,
				"event", string(ev.Kind),
				"task_id", ev.Task.ID)
		}
	}()
	l.OnTaskEvent(ctx, ev)
}

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"therapath.app/insight/common/logger"
)

// SchedulerConfig carries the calendar rules for recurring tasks.
type SchedulerConfig struct {
	DailyHour    int          // periodic-insight, every day at this hour
	WeeklyDay    time.Weekday // pattern-detection, weekly
	WeeklyHour   int
	MonthlyHour  int // progress-report, 1st of the month
	TickInterval time.Duration
	MaxRetries   int // retry budget for the tasks the scheduler fires
}

type job struct {
	name     string
	taskType TaskType
	priority Priority
	// nextAfter computes the next calendar boundary strictly after t.
	nextAfter func(t time.Time) time.Time
	nextRun   time.Time
}

// PeriodicScheduler fires recurring task types at calendar boundaries. Each
// job tracks its next due time; a tick at or past that time fires the job and
// advances it. A process pause that skips the exact boundary therefore fires
// the job late instead of silently missing the run.
type PeriodicScheduler struct {
	queue *TaskQueue
	cfg   SchedulerConfig
	clock func() time.Time

	mu   sync.Mutex
	jobs []*job

	stopCh    chan struct{}
	stoppedCh chan struct{}
	stopOnce  sync.Once
}

func NewPeriodicScheduler(queue *TaskQueue, cfg SchedulerConfig) *PeriodicScheduler {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	s := &PeriodicScheduler{
		queue:     queue,
		cfg:       cfg,
		clock:     time.Now,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}

	s.jobs = []*job{
		{
			name:      "daily-insight",
			taskType:  TaskTypePeriodicInsight,
			priority:  PriorityBatch,
			nextAfter: s.nextDaily,
		},
		{
			name:      "weekly-pattern-detection",
			taskType:  TaskTypePatternDetection,
			priority:  PriorityLow,
			nextAfter: s.nextWeekly,
		},
		{
			name:      "monthly-progress-report",
			taskType:  TaskTypeProgressReport,
			priority:  PriorityLow,
			nextAfter: s.nextMonthly,
		},
	}

	return s
}

// Run polls the clock until ctx is cancelled or Stop is called.
func (s *PeriodicScheduler) Run(ctx context.Context) {
	defer close(s.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "insight.engine.scheduler",
	})

	now := s.clock()
	s.mu.Lock()
	for _, j := range s.jobs {
		j.nextRun = j.nextAfter(now)
		slog.InfoContext(ctx, "periodic job armed", "job", j.name, "next_run", j.nextRun)
	}
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			slog.InfoContext(ctx, "scheduler stopping")
			return
		case <-ticker.C:
			s.Tick(ctx, s.clock())
		}
	}
}

// Stop signals the run loop.
func (s *PeriodicScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.stoppedCh
}

// Tick fires every job whose due time has passed. Exported so tests can
// drive the scheduler without real time.
func (s *PeriodicScheduler) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, j := range s.jobs {
		if j.nextRun.IsZero() {
			j.nextRun = j.nextAfter(now)
			continue
		}
		if now.Before(j.nextRun) {
			continue
		}

		slog.InfoContext(ctx, "firing periodic job", "job", j.name, "due", j.nextRun)

		task := &Task{
			Type:       j.taskType,
			Priority:   j.priority,
			MaxRetries: s.cfg.MaxRetries,
		}
		if err := s.queue.Enqueue(ctx, task); err != nil {
			slog.ErrorContext(ctx, "failed to enqueue periodic task",
				"job", j.name,
				"error", err)
		}

		j.nextRun = j.nextAfter(now)
	}
}

func (s *PeriodicScheduler) nextDaily(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.cfg.DailyHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *PeriodicScheduler) nextWeekly(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), t.Day(), s.cfg.WeeklyHour, 0, 0, 0, t.Location())
	daysAhead := (int(s.cfg.WeeklyDay) - int(t.Weekday()) + 7) % 7
	next = next.AddDate(0, 0, daysAhead)
	if !next.After(t) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

func (s *PeriodicScheduler) nextMonthly(t time.Time) time.Time {
	next := time.Date(t.Year(), t.Month(), 1, s.cfg.MonthlyHour, 0, 0, 0, t.Location())
	if !next.After(t) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}

// SetClock overrides the time source. Test hook.
func (s *PeriodicScheduler) SetClock(clock func() time.Time) {
	s.clock = clock
}

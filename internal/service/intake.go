// Package service translates domain events into queued engine tasks. Insight
// generation is supplementary: enqueue failures are logged, never surfaced to
// the primary write path that triggered them.
package service

import (
	"context"
	"log/slog"
	"strings"

	"therapath.app/insight/common/logger"
	"therapath.app/insight/internal/engine"
	"therapath.app/insight/internal/model"
)

// riskKeywords are scanned in new session notes; a hit escalates to an
// immediate risk assessment alongside the routine analysis.
var riskKeywords = []string{
	"suicid", "self-harm", "self harm", "hurt myself", "hurt themselves",
	"overdose", "no reason to live", "end it all",
}

type Intake struct {
	queue      *engine.TaskQueue
	maxRetries int
}

func NewIntake(queue *engine.TaskQueue, maxRetries int) *Intake {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Intake{queue: queue, maxRetries: maxRetries}
}

// OnClientCreated queues an initial intake assessment.
func (s *Intake) OnClientCreated(ctx context.Context, client *model.Client) {
	s.submit(ctx, &engine.Task{
		Type:       engine.TaskTypeNewClientAssessment,
		Priority:   engine.PriorityNormal,
		MaxRetries: s.maxRetries,
		Payload:    engine.Payload{ClientID: &client.ID},
	})
}

// OnSessionNoteCreated queues the routine note analysis and, when the note
// contains risk language, a high-priority risk assessment that will run
// before it.
func (s *Intake) OnSessionNoteCreated(ctx context.Context, note *model.SessionNote) {
	if containsRiskLanguage(note.Content) {
		s.submit(ctx, &engine.Task{
			Type:       engine.TaskTypeRiskAssessment,
			Priority:   engine.PriorityHigh,
			MaxRetries: s.maxRetries,
			Payload: engine.Payload{
				ClientID: &note.ClientID,
				Content:  note.Content,
			},
		})
	}
	s.submit(ctx, &engine.Task{
		Type:       engine.TaskTypeSessionNoteAnalysis,
		Priority:   engine.PriorityNormal,
		MaxRetries: s.maxRetries,
		Payload: engine.Payload{
			ClientID:      &note.ClientID,
			SessionNoteID: &note.ID,
		},
	})
}

// OnAppointmentCompleted queues a low-priority appointment summary.
func (s *Intake) OnAppointmentCompleted(ctx context.Context, appointmentID int64) {
	s.submit(ctx, &engine.Task{
		Type:       engine.TaskTypeAppointmentSummary,
		Priority:   engine.PriorityLow,
		MaxRetries: s.maxRetries,
		Payload:    engine.Payload{AppointmentID: &appointmentID},
	})
}

// OnDocumentUploaded queues a document analysis.
func (s *Intake) OnDocumentUploaded(ctx context.Context, doc *model.Document) {
	s.submit(ctx, &engine.Task{
		Type:       engine.TaskTypeDocumentAnalysis,
		Priority:   engine.PriorityNormal,
		MaxRetries: s.maxRetries,
		Payload: engine.Payload{
			ClientID:   doc.ClientID,
			DocumentID: &doc.ID,
		},
	})
}

// RequestTreatmentPlanUpdate queues a plan regeneration for a client.
func (s *Intake) RequestTreatmentPlanUpdate(ctx context.Context, clientID int64) {
	s.submit(ctx, &engine.Task{
		Type:       engine.TaskTypeTreatmentPlanUpdate,
		Priority:   engine.PriorityNormal,
		MaxRetries: s.maxRetries,
		Payload:    engine.Payload{ClientID: &clientID},
	})
}

func (s *Intake) submit(ctx context.Context, task *engine.Task) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "insight.service.intake",
		TaskType:  logger.Ptr(string(task.Type)),
	})
	if err := s.queue.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue task", "error", err)
		return
	}
	slog.InfoContext(ctx, "task enqueued", "priority", task.Priority.String())
}

func containsRiskLanguage(content string) bool {
	lowered := strings.ToLower(content)
	for _, kw := range riskKeywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

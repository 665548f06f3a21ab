package engine

import "time"

// TaskType identifies which prompt-building and persistence logic applies to
// a queued unit of work. The set is closed; unknown types are rejected at
// enqueue time.
type TaskType string

const (
	TaskTypeNewClientAssessment TaskType = "new-client-assessment"
	TaskTypeSessionNoteAnalysis TaskType = "session-note-analysis"
	TaskTypeAppointmentSummary  TaskType = "appointment-summary"
	TaskTypeDocumentAnalysis    TaskType = "document-analysis"
	TaskTypeProgressReport      TaskType = "progress-report"
	TaskTypePatternDetection    TaskType = "pattern-detection"
	TaskTypePeriodicInsight     TaskType = "periodic-insight"
	TaskTypeRiskAssessment      TaskType = "risk-assessment"
	TaskTypeTreatmentPlanUpdate TaskType = "treatment-plan-update"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeNewClientAssessment, TaskTypeSessionNoteAnalysis,
		TaskTypeAppointmentSummary, TaskTypeDocumentAnalysis,
		TaskTypeProgressReport, TaskTypePatternDetection,
		TaskTypePeriodicInsight, TaskTypeRiskAssessment,
		TaskTypeTreatmentPlanUpdate:
		return true
	}
	return false
}

// Priority is the ordinal service rank. Lower value = served first.
type Priority int

const (
	PriorityUrgent Priority = 1
	PriorityHigh   Priority = 2
	PriorityNormal Priority = 3
	PriorityLow    Priority = 4
	PriorityBatch  Priority = 5
)

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "urgent"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	case PriorityBatch:
		return "batch"
	}
	return "unknown"
}

// Payload carries the type-specific data needed to build a prompt. Fields
// irrelevant to a task type stay nil.
type Payload struct {
	ClientID      *int64 `json:"client_id,omitempty"`
	SessionNoteID *int64 `json:"session_note_id,omitempty"`
	AppointmentID *int64 `json:"appointment_id,omitempty"`
	DocumentID    *int64 `json:"document_id,omitempty"`
	Content       string `json:"content,omitempty"`
}

// Task is one queued unit of AI-generation work.
type Task struct {
	ID         int64
	Type       TaskType
	Priority   Priority
	Payload    Payload
	RetryCount int
	MaxRetries int
	CreatedAt  time.Time
	// ScheduledFor defers visibility: the task is never handed to the
	// processor before this time. Nil means immediately eligible.
	ScheduledFor *time.Time
}

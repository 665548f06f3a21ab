package store

import (
	"context"
	"errors"
	"time"

	"therapath.app/insight/internal/model"
)

var ErrNotFound = errors.New("not found")

// The engine treats storage as an opaque contract: reads to build prompts,
// one write path for results. Everything here is satisfied by the pgx
// implementation in this package and by the function-field mocks in tests.

type ClientStore interface {
	Create(ctx context.Context, client *model.Client) error
	GetByID(ctx context.Context, id int64) (*model.Client, error)
}

type SessionNoteStore interface {
	Create(ctx context.Context, note *model.SessionNote) error
	GetByID(ctx context.Context, id int64) (*model.SessionNote, error)
	ListRecentByClient(ctx context.Context, clientID int64, limit int32) ([]model.SessionNote, error)
	ListSince(ctx context.Context, since time.Time) ([]model.SessionNote, error)
}

type AppointmentStore interface {
	Create(ctx context.Context, appt *model.Appointment) error
	GetByID(ctx context.Context, id int64) (*model.Appointment, error)
	MarkCompleted(ctx context.Context, id int64) error
}

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id int64) (*model.Document, error)
}

type TreatmentPlanStore interface {
	GetByClient(ctx context.Context, clientID int64) (*model.TreatmentPlan, error)
	Upsert(ctx context.Context, plan *model.TreatmentPlan) error
	// UpsertWithInsight writes the regenerated plan and the insight that
	// produced it in one transaction, so a plan never references an insight
	// that was not persisted.
	UpsertWithInsight(ctx context.Context, plan *model.TreatmentPlan, insight *model.Insight) error
}

type InsightStore interface {
	Create(ctx context.Context, insight *model.Insight) error
	ListRecentByClient(ctx context.Context, clientID int64, limit int32) ([]model.Insight, error)
}

// Store bundles the individual stores behind one accessor, mirroring how the
// services and task handlers consume them.
type Store interface {
	Clients() ClientStore
	SessionNotes() SessionNoteStore
	Appointments() AppointmentStore
	Documents() DocumentStore
	TreatmentPlans() TreatmentPlanStore
	Insights() InsightStore
}

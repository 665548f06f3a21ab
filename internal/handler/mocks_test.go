package handler_test

import (
	"context"
	"sync"
	"time"

	"therapath.app/insight/common/llm"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/store"
)

// mockStore satisfies store.Store with function fields, defaulting every
// lookup to ErrNotFound. Created insights and upserted plans are captured for
// assertions.
type mockStore struct {
	mu       sync.Mutex
	insights []*model.Insight
	plans    []*model.TreatmentPlan

	getClientFn       func(ctx context.Context, id int64) (*model.Client, error)
	getNoteFn         func(ctx context.Context, id int64) (*model.SessionNote, error)
	getAppointmentFn  func(ctx context.Context, id int64) (*model.Appointment, error)
	getDocumentFn     func(ctx context.Context, id int64) (*model.Document, error)
	getPlanFn         func(ctx context.Context, clientID int64) (*model.TreatmentPlan, error)
	listRecentNotesFn func(ctx context.Context, clientID int64, limit int32) ([]model.SessionNote, error)
	listNotesSinceFn  func(ctx context.Context, since time.Time) ([]model.SessionNote, error)
	createInsightFn   func(ctx context.Context, insight *model.Insight) error
}

func (m *mockStore) Clients() store.ClientStore               { return (*mockClients)(m) }
func (m *mockStore) SessionNotes() store.SessionNoteStore     { return (*mockNotes)(m) }
func (m *mockStore) Appointments() store.AppointmentStore     { return (*mockAppointments)(m) }
func (m *mockStore) Documents() store.DocumentStore           { return (*mockDocuments)(m) }
func (m *mockStore) TreatmentPlans() store.TreatmentPlanStore { return (*mockPlans)(m) }
func (m *mockStore) Insights() store.InsightStore             { return (*mockInsights)(m) }

func (m *mockStore) savedInsights() []*model.Insight {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Insight, len(m.insights))
	copy(out, m.insights)
	return out
}

func (m *mockStore) savedPlans() []*model.TreatmentPlan {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.TreatmentPlan, len(m.plans))
	copy(out, m.plans)
	return out
}

type mockClients mockStore

func (m *mockClients) Create(context.Context, *model.Client) error { return nil }

func (m *mockClients) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	if m.getClientFn != nil {
		return m.getClientFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

type mockNotes mockStore

func (m *mockNotes) Create(context.Context, *model.SessionNote) error { return nil }

func (m *mockNotes) GetByID(ctx context.Context, id int64) (*model.SessionNote, error) {
	if m.getNoteFn != nil {
		return m.getNoteFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockNotes) ListRecentByClient(ctx context.Context, clientID int64, limit int32) ([]model.SessionNote, error) {
	if m.listRecentNotesFn != nil {
		return m.listRecentNotesFn(ctx, clientID, limit)
	}
	return nil, nil
}

func (m *mockNotes) ListSince(ctx context.Context, since time.Time) ([]model.SessionNote, error) {
	if m.listNotesSinceFn != nil {
		return m.listNotesSinceFn(ctx, since)
	}
	return nil, nil
}

type mockAppointments mockStore

func (m *mockAppointments) Create(context.Context, *model.Appointment) error { return nil }

func (m *mockAppointments) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	if m.getAppointmentFn != nil {
		return m.getAppointmentFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockAppointments) MarkCompleted(context.Context, int64) error { return nil }

type mockDocuments mockStore

func (m *mockDocuments) Create(context.Context, *model.Document) error { return nil }

func (m *mockDocuments) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	if m.getDocumentFn != nil {
		return m.getDocumentFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

type mockPlans mockStore

func (m *mockPlans) GetByClient(ctx context.Context, clientID int64) (*model.TreatmentPlan, error) {
	if m.getPlanFn != nil {
		return m.getPlanFn(ctx, clientID)
	}
	return nil, store.ErrNotFound
}

func (m *mockPlans) Upsert(_ context.Context, plan *model.TreatmentPlan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = append(m.plans, plan)
	return nil
}

func (m *mockPlans) UpsertWithInsight(_ context.Context, plan *model.TreatmentPlan, insight *model.Insight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans = append(m.plans, plan)
	m.insights = append(m.insights, insight)
	return nil
}

type mockInsights mockStore

func (m *mockInsights) Create(ctx context.Context, insight *model.Insight) error {
	if m.createInsightFn != nil {
		if err := m.createInsightFn(ctx, insight); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insight)
	return nil
}

func (m *mockInsights) ListRecentByClient(context.Context, int64, int32) ([]model.Insight, error) {
	return nil, nil
}

// mockProvider fakes an AI backend.
type mockProvider struct {
	name       string
	availErr   error
	generateFn func(ctx context.Context, prompt string) (string, error)
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) IsAvailable(context.Context) error { return m.availErr }

func (m *mockProvider) GenerateResponse(ctx context.Context, prompt string, _ llm.Options) (string, error) {
	if m.generateFn != nil {
		return m.generateFn(ctx, prompt)
	}
	return "{}", nil
}

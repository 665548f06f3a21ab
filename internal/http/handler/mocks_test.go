package handler_test

import (
	"context"
	"sync"
	"time"

	"therapath.app/insight/common/llm"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/store"
)

// stubProvider is just enough of an AI backend for registry wiring.
type stubProvider struct {
	name     string
	availErr error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) IsAvailable(context.Context) error { return p.availErr }

func (p *stubProvider) GenerateResponse(context.Context, string, llm.Options) (string, error) {
	return "{}", nil
}

// mockStore persists created records in memory and answers lookups from
// optional function fields, defaulting to store.ErrNotFound.
type mockStore struct {
	mu sync.Mutex

	clients      []*model.Client
	notes        []*model.SessionNote
	appointments []*model.Appointment
	documents    []*model.Document

	getClientFn     func(id int64) (*model.Client, error)
	markCompletedFn func(id int64) error
	listInsightsFn  func(clientID int64) ([]model.Insight, error)
}

func newMockStore() *mockStore { return &mockStore{} }

func (m *mockStore) Clients() store.ClientStore               { return (*mockClients)(m) }
func (m *mockStore) SessionNotes() store.SessionNoteStore     { return (*mockNotes)(m) }
func (m *mockStore) Appointments() store.AppointmentStore     { return (*mockAppointments)(m) }
func (m *mockStore) Documents() store.DocumentStore           { return (*mockDocuments)(m) }
func (m *mockStore) TreatmentPlans() store.TreatmentPlanStore { return (*mockPlans)(m) }
func (m *mockStore) Insights() store.InsightStore             { return (*mockInsights)(m) }

type mockClients mockStore

func (m *mockClients) Create(_ context.Context, client *model.Client) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients = append(m.clients, client)
	return nil
}

func (m *mockClients) GetByID(_ context.Context, id int64) (*model.Client, error) {
	if m.getClientFn != nil {
		return m.getClientFn(id)
	}
	return nil, store.ErrNotFound
}

type mockNotes mockStore

func (m *mockNotes) Create(_ context.Context, note *model.SessionNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes = append(m.notes, note)
	return nil
}

func (m *mockNotes) GetByID(context.Context, int64) (*model.SessionNote, error) {
	return nil, store.ErrNotFound
}

func (m *mockNotes) ListRecentByClient(context.Context, int64, int32) ([]model.SessionNote, error) {
	return nil, nil
}

func (m *mockNotes) ListSince(context.Context, time.Time) ([]model.SessionNote, error) {
	return nil, nil
}

type mockAppointments mockStore

func (m *mockAppointments) Create(_ context.Context, appt *model.Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments = append(m.appointments, appt)
	return nil
}

func (m *mockAppointments) GetByID(context.Context, int64) (*model.Appointment, error) {
	return nil, store.ErrNotFound
}

func (m *mockAppointments) MarkCompleted(_ context.Context, id int64) error {
	if m.markCompletedFn != nil {
		return m.markCompletedFn(id)
	}
	return store.ErrNotFound
}

type mockDocuments mockStore

func (m *mockDocuments) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = append(m.documents, doc)
	return nil
}

func (m *mockDocuments) GetByID(context.Context, int64) (*model.Document, error) {
	return nil, store.ErrNotFound
}

type mockPlans mockStore

func (m *mockPlans) GetByClient(context.Context, int64) (*model.TreatmentPlan, error) {
	return nil, store.ErrNotFound
}

func (m *mockPlans) Upsert(context.Context, *model.TreatmentPlan) error { return nil }

func (m *mockPlans) UpsertWithInsight(context.Context, *model.TreatmentPlan, *model.Insight) error {
	return nil
}

type mockInsights mockStore

func (m *mockInsights) Create(context.Context, *model.Insight) error { return nil }

func (m *mockInsights) ListRecentByClient(_ context.Context, clientID int64, _ int32) ([]model.Insight, error) {
	if m.listInsightsFn != nil {
		return m.listInsightsFn(clientID)
	}
	return nil, nil
}

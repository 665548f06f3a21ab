package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"therapath.app/insight/core/db"
	"therapath.app/insight/internal/model"
)

// PgStore implements Store over a pgx connection pool.
type PgStore struct {
	db   *db.DB
	pool *pgxpool.Pool
}

func NewPgStore(database *db.DB) *PgStore {
	return &PgStore{db: database, pool: database.Pool()}
}

func (s *PgStore) Clients() ClientStore               { return (*pgClientStore)(s) }
func (s *PgStore) SessionNotes() SessionNoteStore     { return (*pgSessionNoteStore)(s) }
func (s *PgStore) Appointments() AppointmentStore     { return (*pgAppointmentStore)(s) }
func (s *PgStore) Documents() DocumentStore           { return (*pgDocumentStore)(s) }
func (s *PgStore) TreatmentPlans() TreatmentPlanStore { return (*pgTreatmentPlanStore)(s) }
func (s *PgStore) Insights() InsightStore             { return (*pgInsightStore)(s) }

// --- Clients ----------------------------------------------------------------

type pgClientStore PgStore

func (s *pgClientStore) Create(ctx context.Context, c *model.Client) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO clients (id, name, email, date_of_birth, status, referral_source, presenting_concerns, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())`,
		c.ID, c.Name, c.Email, c.DateOfBirth, c.Status, c.ReferralSrc, c.Concerns)
	if err != nil {
		return fmt.Errorf("inserting client: %w", err)
	}
	return nil
}

func (s *pgClientStore) GetByID(ctx context.Context, id int64) (*model.Client, error) {
	var c model.Client
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, email, date_of_birth, status, referral_source, presenting_concerns, created_at, updated_at
		FROM clients WHERE id = $1`, id).
		Scan(&c.ID, &c.Name, &c.Email, &c.DateOfBirth, &c.Status, &c.ReferralSrc, &c.Concerns, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &c, nil
}

// --- Session notes ----------------------------------------------------------

type pgSessionNoteStore PgStore

func (s *pgSessionNoteStore) Create(ctx context.Context, n *model.SessionNote) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_notes (id, client_id, content, session_at, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		n.ID, n.ClientID, n.Content, n.SessionAt)
	if err != nil {
		return fmt.Errorf("inserting session note: %w", err)
	}
	return nil
}

func (s *pgSessionNoteStore) GetByID(ctx context.Context, id int64) (*model.SessionNote, error) {
	var n model.SessionNote
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, content, session_at, created_at
		FROM session_notes WHERE id = $1`, id).
		Scan(&n.ID, &n.ClientID, &n.Content, &n.SessionAt, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

func (s *pgSessionNoteStore) ListRecentByClient(ctx context.Context, clientID int64, limit int32) ([]model.SessionNote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, content, session_at, created_at
		FROM session_notes WHERE client_id = $1
		ORDER BY session_at DESC LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (s *pgSessionNoteStore) ListSince(ctx context.Context, since time.Time) ([]model.SessionNote, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, content, session_at, created_at
		FROM session_notes WHERE session_at >= $1
		ORDER BY session_at DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func scanNotes(rows pgx.Rows) ([]model.SessionNote, error) {
	var notes []model.SessionNote
	for rows.Next() {
		var n model.SessionNote
		if err := rows.Scan(&n.ID, &n.ClientID, &n.Content, &n.SessionAt, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- Appointments -----------------------------------------------------------

type pgAppointmentStore PgStore

func (s *pgAppointmentStore) Create(ctx context.Context, a *model.Appointment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO appointments (id, client_id, starts_at, ends_at, status, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		a.ID, a.ClientID, a.StartsAt, a.EndsAt, a.Status, a.Notes)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

func (s *pgAppointmentStore) GetByID(ctx context.Context, id int64) (*model.Appointment, error) {
	var a model.Appointment
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, starts_at, ends_at, status, notes, created_at
		FROM appointments WHERE id = $1`, id).
		Scan(&a.ID, &a.ClientID, &a.StartsAt, &a.EndsAt, &a.Status, &a.Notes, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (s *pgAppointmentStore) MarkCompleted(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE appointments SET status = $2 WHERE id = $1`,
		id, model.AppointmentStatusCompleted)
	if err != nil {
		return fmt.Errorf("marking appointment completed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Documents --------------------------------------------------------------

type pgDocumentStore PgStore

func (s *pgDocumentStore) Create(ctx context.Context, d *model.Document) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO documents (id, client_id, file_name, content_text, created_at)
		VALUES ($1, $2, $3, $4, now())`,
		d.ID, d.ClientID, d.FileName, d.ContentText)
	if err != nil {
		return fmt.Errorf("inserting document: %w", err)
	}
	return nil
}

func (s *pgDocumentStore) GetByID(ctx context.Context, id int64) (*model.Document, error) {
	var d model.Document
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, file_name, content_text, created_at
		FROM documents WHERE id = $1`, id).
		Scan(&d.ID, &d.ClientID, &d.FileName, &d.ContentText, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// --- Treatment plans --------------------------------------------------------

type pgTreatmentPlanStore PgStore

func (s *pgTreatmentPlanStore) GetByClient(ctx context.Context, clientID int64) (*model.TreatmentPlan, error) {
	var p model.TreatmentPlan
	err := s.pool.QueryRow(ctx, `
		SELECT id, client_id, goals, summary, updated_at
		FROM treatment_plans WHERE client_id = $1`, clientID).
		Scan(&p.ID, &p.ClientID, &p.Goals, &p.Summary, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *pgTreatmentPlanStore) Upsert(ctx context.Context, p *model.TreatmentPlan) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO treatment_plans (id, client_id, goals, summary, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (client_id) DO UPDATE
		SET goals = EXCLUDED.goals, summary = EXCLUDED.summary, updated_at = now()`,
		p.ID, p.ClientID, p.Goals, p.Summary)
	if err != nil {
		return fmt.Errorf("upserting treatment plan: %w", err)
	}
	return nil
}

func (s *pgTreatmentPlanStore) UpsertWithInsight(ctx context.Context, p *model.TreatmentPlan, i *model.Insight) error {
	analysis, err := json.Marshal(i.Analysis)
	if err != nil {
		return fmt.Errorf("marshaling analysis: %w", err)
	}
	return s.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO insights (id, client_id, type, analysis, provider, from_cache, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, now())`,
			i.ID, i.ClientID, i.Type, analysis, i.Provider, i.FromCache); err != nil {
			return fmt.Errorf("inserting insight: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO treatment_plans (id, client_id, goals, summary, updated_at)
			VALUES ($1, $2, $3, $4, now())
			ON CONFLICT (client_id) DO UPDATE
			SET goals = EXCLUDED.goals, summary = EXCLUDED.summary, updated_at = now()`,
			p.ID, p.ClientID, p.Goals, p.Summary); err != nil {
			return fmt.Errorf("upserting treatment plan: %w", err)
		}
		return nil
	})
}

// --- Insights ---------------------------------------------------------------

type pgInsightStore PgStore

func (s *pgInsightStore) Create(ctx context.Context, i *model.Insight) error {
	analysis, err := json.Marshal(i.Analysis)
	if err != nil {
		return fmt.Errorf("marshaling analysis: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO insights (id, client_id, type, analysis, provider, from_cache, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())`,
		i.ID, i.ClientID, i.Type, analysis, i.Provider, i.FromCache)
	if err != nil {
		return fmt.Errorf("inserting insight: %w", err)
	}
	return nil
}

func (s *pgInsightStore) ListRecentByClient(ctx context.Context, clientID int64, limit int32) ([]model.Insight, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, client_id, type, analysis, provider, from_cache, created_at
		FROM insights WHERE client_id = $1
		ORDER BY created_at DESC LIMIT $2`, clientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []model.Insight
	for rows.Next() {
		var (
			i   model.Insight
			raw []byte
		)
		if err := rows.Scan(&i.ID, &i.ClientID, &i.Type, &raw, &i.Provider, &i.FromCache, &i.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &i.Analysis); err != nil {
			return nil, fmt.Errorf("unmarshaling analysis: %w", err)
		}
		insights = append(insights, i)
	}
	return insights, rows.Err()
}

package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"therapath.app/insight/common/id"
	"therapath.app/insight/internal/engine"
	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/store"
)

const (
	recentNoteLimit = 5
	patternWindow   = 7 * 24 * time.Hour
	insightWindow   = 24 * time.Hour
	reportWindow    = 30 * 24 * time.Hour
)

// NewClientAssessment builds an intake assessment from the client record.
func (h *Handlers) NewClientAssessment(ctx context.Context, task engine.Task) error {
	clientID, err := requireID("client_id", task.Payload.ClientID)
	if err != nil {
		return err
	}
	client, err := h.store.Clients().GetByID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading client: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A new client has been added to the practice.\n\nName: %s\n", client.Name)
	if client.ReferralSrc != nil {
		fmt.Fprintf(&b, "Referral source: %s\n", *client.ReferralSrc)
	}
	if len(client.Concerns) > 0 {
		fmt.Fprintf(&b, "Presenting concerns: %s\n", strings.Join(client.Concerns, "; "))
	}
	b.WriteString("\nProvide an initial clinical assessment: likely focus areas for intake, recommended first-session topics, and anything the intake clinician should screen for.")

	return h.runAnalysis(ctx, task, b.String())
}

// SessionNoteAnalysis analyzes one session note in the context of the
// client's recent sessions.
func (h *Handlers) SessionNoteAnalysis(ctx context.Context, task engine.Task) error {
	noteID, err := requireID("session_note_id", task.Payload.SessionNoteID)
	if err != nil {
		return err
	}
	note, err := h.store.SessionNotes().GetByID(ctx, noteID)
	if err != nil {
		return fmt.Errorf("loading session note: %w", err)
	}

	recent, err := h.store.SessionNotes().ListRecentByClient(ctx, note.ClientID, recentNoteLimit)
	if err != nil {
		return fmt.Errorf("loading recent notes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze this therapy session note.\n\nSession of %s:\n%s\n", note.SessionAt.Format("2006-01-02"), note.Content)
	if history := formatNotes(recent, note.ID); history != "" {
		b.WriteString("\nRecent session context:\n")
		b.WriteString(history)
	}
	b.WriteString("\nIdentify clinical insights, emerging themes, and any risk factors the therapist should follow up on.")

	return h.runAnalysis(ctx, task, b.String())
}

// AppointmentSummary summarizes a completed appointment against the client's
// recent history.
func (h *Handlers) AppointmentSummary(ctx context.Context, task engine.Task) error {
	apptID, err := requireID("appointment_id", task.Payload.AppointmentID)
	if err != nil {
		return err
	}
	appt, err := h.store.Appointments().GetByID(ctx, apptID)
	if err != nil {
		return fmt.Errorf("loading appointment: %w", err)
	}

	recent, err := h.store.SessionNotes().ListRecentByClient(ctx, appt.ClientID, recentNoteLimit)
	if err != nil {
		return fmt.Errorf("loading recent notes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "An appointment on %s has been completed.\n", appt.StartsAt.Format("2006-01-02 15:04"))
	if appt.Notes != nil {
		fmt.Fprintf(&b, "Appointment notes: %s\n", *appt.Notes)
	}
	if history := formatNotes(recent, 0); history != "" {
		b.WriteString("\nRecent session notes:\n")
		b.WriteString(history)
	}
	b.WriteString("\nSummarize the clinical picture after this appointment and suggest follow-up actions.")

	task.Payload.ClientID = &appt.ClientID
	return h.runAnalysis(ctx, task, b.String())
}

// DocumentAnalysis analyzes an uploaded document's extracted text.
func (h *Handlers) DocumentAnalysis(ctx context.Context, task engine.Task) error {
	docID, err := requireID("document_id", task.Payload.DocumentID)
	if err != nil {
		return err
	}
	doc, err := h.store.Documents().GetByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("loading document: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "A document named %q was uploaded.\n\nContent:\n%s\n", doc.FileName, doc.ContentText)
	b.WriteString("\nExtract clinically relevant insights from this document and flag anything requiring attention.")

	task.Payload.ClientID = doc.ClientID
	return h.runAnalysis(ctx, task, b.String())
}

// ProgressReport covers a single client when the payload names one, or the
// whole practice's recent sessions when it does not (the monthly job).
func (h *Handlers) ProgressReport(ctx context.Context, task engine.Task) error {
	if task.Payload.ClientID != nil {
		return h.clientProgressReport(ctx, task, *task.Payload.ClientID)
	}

	since := time.Now().Add(-reportWindow)
	notes, err := h.store.SessionNotes().ListSince(ctx, since)
	if err != nil {
		return fmt.Errorf("loading notes since %s: %w", since.Format("2006-01-02"), err)
	}
	if len(notes) == 0 {
		return nil // nothing to report on, not a failure
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Produce a monthly progress report for the practice based on %d session notes from the last 30 days.\n\n", len(notes))
	b.WriteString(formatNotes(notes, 0))
	b.WriteString("\nSummarize overall treatment progress, practice-wide themes, and recommendations for the coming month.")

	return h.runAnalysis(ctx, task, b.String())
}

func (h *Handlers) clientProgressReport(ctx context.Context, task engine.Task, clientID int64) error {
	client, err := h.store.Clients().GetByID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading client: %w", err)
	}
	recent, err := h.store.SessionNotes().ListRecentByClient(ctx, clientID, recentNoteLimit)
	if err != nil {
		return fmt.Errorf("loading recent notes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Produce a progress report for client %s.\n", client.Name)
	if plan, err := h.store.TreatmentPlans().GetByClient(ctx, clientID); err == nil {
		fmt.Fprintf(&b, "\nCurrent treatment goals: %s\nPlan summary: %s\n", strings.Join(plan.Goals, "; "), plan.Summary)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("loading treatment plan: %w", err)
	}
	if history := formatNotes(recent, 0); history != "" {
		b.WriteString("\nRecent sessions:\n")
		b.WriteString(history)
	}
	b.WriteString("\nAssess progress toward treatment goals and recommend next steps.")

	return h.runAnalysis(ctx, task, b.String())
}

// PatternDetection looks for cross-session patterns over the last week.
func (h *Handlers) PatternDetection(ctx context.Context, task engine.Task) error {
	since := time.Now().Add(-patternWindow)
	notes, err := h.store.SessionNotes().ListSince(ctx, since)
	if err != nil {
		return fmt.Errorf("loading notes since %s: %w", since.Format("2006-01-02"), err)
	}
	if len(notes) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Detect recurring patterns across %d therapy session notes from the last 7 days.\n\n", len(notes))
	b.WriteString(formatNotes(notes, 0))
	b.WriteString("\nIdentify recurring themes, shared stressors, and any clients whose notes suggest escalating risk.")

	return h.runAnalysis(ctx, task, b.String())
}

// PeriodicInsight is the daily digest over the previous day's sessions.
func (h *Handlers) PeriodicInsight(ctx context.Context, task engine.Task) error {
	since := time.Now().Add(-insightWindow)
	notes, err := h.store.SessionNotes().ListSince(ctx, since)
	if err != nil {
		return fmt.Errorf("loading notes since %s: %w", since.Format("2006-01-02"), err)
	}
	if len(notes) == 0 {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Produce a daily insight digest from %d session notes recorded in the last 24 hours.\n\n", len(notes))
	b.WriteString(formatNotes(notes, 0))
	b.WriteString("\nHighlight anything the practice should act on today.")

	return h.runAnalysis(ctx, task, b.String())
}

// TreatmentPlanUpdate regenerates a client's treatment plan from recent
// sessions. Alongside the insight, the plan record itself is updated with the
// analysis's recommendations as goals.
func (h *Handlers) TreatmentPlanUpdate(ctx context.Context, task engine.Task) error {
	clientID, err := requireID("client_id", task.Payload.ClientID)
	if err != nil {
		return err
	}
	client, err := h.store.Clients().GetByID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("loading client: %w", err)
	}
	recent, err := h.store.SessionNotes().ListRecentByClient(ctx, clientID, recentNoteLimit)
	if err != nil {
		return fmt.Errorf("loading recent notes: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Update the treatment plan for client %s.\n", client.Name)
	var planID int64
	existing, err := h.store.TreatmentPlans().GetByClient(ctx, clientID)
	switch {
	case err == nil:
		planID = existing.ID
		fmt.Fprintf(&b, "\nCurrent goals: %s\nCurrent summary: %s\n", strings.Join(existing.Goals, "; "), existing.Summary)
	case errors.Is(err, store.ErrNotFound):
		b.WriteString("\nNo treatment plan exists yet; propose an initial one.\n")
	default:
		return fmt.Errorf("loading treatment plan: %w", err)
	}
	if history := formatNotes(recent, 0); history != "" {
		b.WriteString("\nRecent sessions:\n")
		b.WriteString(history)
	}
	b.WriteString("\nPut revised treatment goals in recommendations and a plan summary in insights.")

	res, err := h.exec.GenerateWithFallback(ctx, b.String(), fallback.Options{
		Generate:  analysisOptions(),
		Namespace: string(task.Type),
	})
	if err != nil {
		return err
	}
	analysis, err := parseAnalysis(res.Response)
	if err != nil {
		return fmt.Errorf("parsing response from %s: %w", res.ProviderUsed, err)
	}

	plan := &model.TreatmentPlan{
		ID:       planID,
		ClientID: clientID,
		Goals:    analysis.Recommendations,
		Summary:  strings.Join(analysis.Insights, " "),
	}
	if plan.ID == 0 {
		plan.ID = id.New()
	}
	insight := newInsight(task, analysis, res.ProviderUsed, res.FromCache)
	if err := h.store.TreatmentPlans().UpsertWithInsight(ctx, plan, insight); err != nil {
		return fmt.Errorf("saving treatment plan update: %w", err)
	}
	return nil
}

func formatNotes(notes []model.SessionNote, skipID int64) string {
	var b strings.Builder
	for _, n := range notes {
		if n.ID == skipID {
			continue
		}
		fmt.Fprintf(&b, "- [client %d, %s] %s\n", n.ClientID, n.SessionAt.Format("2006-01-02"), n.Content)
	}
	return b.String()
}

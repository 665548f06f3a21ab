// Package handler implements the per-task-type work the queue processor
// executes: read the relevant records, build a prompt, resolve it through the
// fallback executor, parse the typed analysis, and persist the insight.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"therapath.app/insight/common/id"
	"therapath.app/insight/common/llm"
	"therapath.app/insight/internal/engine"
	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/store"
)

const systemPrompt = `You are a clinical insight assistant for a therapy practice.
Respond with a single JSON object matching the requested schema. Keep every
insight, recommendation, theme, and risk factor to one short sentence. Set
priority to one of "low", "moderate", "high", or "urgent" and confidence to an
integer between 0 and 100. Never include protected health identifiers beyond
what the prompt already contains.`

var analysisSchema = llm.GenerateSchema[model.ClinicalAnalysis]()

type Handlers struct {
	store store.Store
	exec  *fallback.Executor
}

func New(st store.Store, exec *fallback.Executor) *Handlers {
	return &Handlers{store: st, exec: exec}
}

// RegisterAll wires every task type to its handler on the processor.
func (h *Handlers) RegisterAll(p *engine.Processor) {
	p.RegisterHandler(engine.TaskTypeNewClientAssessment, engine.HandlerFunc(h.NewClientAssessment))
	p.RegisterHandler(engine.TaskTypeSessionNoteAnalysis, engine.HandlerFunc(h.SessionNoteAnalysis))
	p.RegisterHandler(engine.TaskTypeAppointmentSummary, engine.HandlerFunc(h.AppointmentSummary))
	p.RegisterHandler(engine.TaskTypeDocumentAnalysis, engine.HandlerFunc(h.DocumentAnalysis))
	p.RegisterHandler(engine.TaskTypeProgressReport, engine.HandlerFunc(h.ProgressReport))
	p.RegisterHandler(engine.TaskTypePatternDetection, engine.HandlerFunc(h.PatternDetection))
	p.RegisterHandler(engine.TaskTypePeriodicInsight, engine.HandlerFunc(h.PeriodicInsight))
	p.RegisterHandler(engine.TaskTypeRiskAssessment, engine.HandlerFunc(h.RiskAssessment))
	p.RegisterHandler(engine.TaskTypeTreatmentPlanUpdate, engine.HandlerFunc(h.TreatmentPlanUpdate))
}

func analysisOptions() llm.Options {
	return llm.Options{
		SystemPrompt: systemPrompt,
		MaxTokens:    1024,
		Temperature:  llm.Temp(0.2),
		SchemaName:   "clinical_analysis",
		Schema:       analysisSchema,
	}
}

// runAnalysis is the shared tail of every handler: resolve the prompt, parse
// the typed result, persist the insight.
func (h *Handlers) runAnalysis(ctx context.Context, task engine.Task, prompt string) error {
	res, err := h.exec.GenerateWithFallback(ctx, prompt, fallback.Options{
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

	return h.saveInsight(ctx, task, analysis, res.ProviderUsed, res.FromCache)
}

func (h *Handlers) saveInsight(ctx context.Context, task engine.Task, analysis model.ClinicalAnalysis, provider string, fromCache bool) error {
	insight := newInsight(task, analysis, provider, fromCache)
	if err := h.store.Insights().Create(ctx, insight); err != nil {
		return fmt.Errorf("persisting insight: %w", err)
	}
	return nil
}

func newInsight(task engine.Task, analysis model.ClinicalAnalysis, provider string, fromCache bool) *model.Insight {
	return &model.Insight{
		ID:        id.New(),
		ClientID:  task.Payload.ClientID,
		Type:      string(task.Type),
		Analysis:  analysis,
		Provider:  provider,
		FromCache: fromCache,
	}
}

// parseAnalysis decodes a provider response into the typed analysis. Some
// models wrap JSON in a markdown fence even when asked not to, so fences are
// stripped before decoding.
func parseAnalysis(response string) (model.ClinicalAnalysis, error) {
	text := strings.TrimSpace(response)
	if after, ok := strings.CutPrefix(text, "```json"); ok {
		text = after
	} else if after, ok := strings.CutPrefix(text, "```"); ok {
		text = after
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	var analysis model.ClinicalAnalysis
	if err := json.Unmarshal([]byte(text), &analysis); err != nil {
		return model.ClinicalAnalysis{}, fmt.Errorf("malformed analysis JSON: %w", err)
	}

	if analysis.Priority == "" {
		analysis.Priority = model.AnalysisPriorityModerate
	}
	if analysis.Confidence < 0 {
		analysis.Confidence = 0
	}
	if analysis.Confidence > 100 {
		analysis.Confidence = 100
	}
	return analysis, nil
}

func requireID(name string, v *int64) (int64, error) {
	if v == nil {
		return 0, fmt.Errorf("task payload missing %s", name)
	}
	return *v, nil
}

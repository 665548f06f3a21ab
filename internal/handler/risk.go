package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"therapath.app/insight/common/logger"
	"therapath.app/insight/internal/engine"
	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/model"
)

// RiskAssessment queries the two most-preferred providers concurrently and
// merges their analyses, so a single model's blind spot cannot suppress a
// risk signal. With one provider registered it degrades to a single opinion;
// the cache is bypassed so every assessment reflects the current notes.
func (h *Handlers) RiskAssessment(ctx context.Context, task engine.Task) error {
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
	fmt.Fprintf(&b, "Perform a clinical risk assessment for client %s.\n", client.Name)
	if len(client.Concerns) > 0 {
		fmt.Fprintf(&b, "Presenting concerns: %s\n", strings.Join(client.Concerns, "; "))
	}
	if task.Payload.Content != "" {
		fmt.Fprintf(&b, "\nTriggering note:\n%s\n", task.Payload.Content)
	}
	if history := formatNotes(recent, 0); history != "" {
		b.WriteString("\nRecent sessions:\n")
		b.WriteString(history)
	}
	b.WriteString("\nAssess risk of harm to self or others. List every risk factor found and set priority to the highest level the evidence supports.")
	prompt := b.String()

	entries := h.exec.Registry().Entries()
	if len(entries) > 2 {
		entries = entries[:2]
	}
	if len(entries) == 0 {
		return &fallback.AllProvidersFailedError{}
	}

	type outcome struct {
		provider string
		analysis model.ClinicalAnalysis
		err      error
	}

	results := make([]outcome, len(entries))
	var wg sync.WaitGroup
	for i, entry := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := entry.Provider.Name()
			resp, err := h.exec.GenerateWith(ctx, entry, prompt, analysisOptions())
			if err != nil {
				results[i] = outcome{provider: name, err: err}
				return
			}
			analysis, err := parseAnalysis(resp)
			if err != nil {
				results[i] = outcome{provider: name, err: fmt.Errorf("parsing response: %w", err)}
				return
			}
			results[i] = outcome{provider: name, analysis: analysis}
		}()
	}
	wg.Wait()

	var (
		analyses  []model.ClinicalAnalysis
		providers []string
		failures  []fallback.ProviderFailure
	)
	for _, r := range results {
		if r.err != nil {
			if errors.Is(r.err, fallback.ErrCostLimitExceeded) {
				return r.err
			}
			var pf fallback.ProviderFailure
			if !errors.As(r.err, &pf) {
				pf = fallback.ProviderFailure{Provider: r.provider, Kind: "error", Err: r.err}
			}
			failures = append(failures, pf)
			slog.WarnContext(ctx, "risk assessment provider failed",
				"provider", r.provider, "error", r.err)
			continue
		}
		analyses = append(analyses, r.analysis)
		providers = append(providers, r.provider)
	}

	if len(analyses) == 0 {
		return &fallback.AllProvidersFailedError{Failures: failures}
	}

	merged := analyses[0]
	provider := providers[0]
	if len(analyses) == 2 {
		merged = analyses[0].Merge(analyses[1])
		provider = providers[0] + "+" + providers[1]
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{Provider: logger.Ptr(provider)})
	if merged.Priority == model.AnalysisPriorityUrgent || merged.Priority == model.AnalysisPriorityHigh {
		slog.WarnContext(ctx, "elevated risk detected",
			"priority", merged.Priority,
			"risk_factors", len(merged.RiskFactors))
	}

	return h.saveInsight(ctx, task, merged, provider, false)
}

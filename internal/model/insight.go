package model

import "time"

// Insight is the persisted output of one engine task.
type Insight struct {
	ID        int64            `json:"id"`
	ClientID  *int64           `json:"client_id,omitempty"`
	Type      string           `json:"type"` // task type that produced it
	Analysis  ClinicalAnalysis `json:"analysis"`
	Provider  string           `json:"provider"` // provider name, or "cache (stale)"
	FromCache bool             `json:"from_cache"`
	CreatedAt time.Time        `json:"created_at"`
}

// ClinicalAnalysis is the fixed result structure every provider response is
// parsed into. Providers are prompted to return exactly this shape; merging
// two providers' results follows the rules on Merge.
type ClinicalAnalysis struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
	Themes          []string `json:"themes"`
	Priority        string   `json:"priority"` // "low", "moderate", "high", "urgent"
	RiskFactors     []string `json:"risk_factors"`
	Confidence      int      `json:"confidence"` // 0-100, heuristic
}

const (
	AnalysisPriorityLow      = "low"
	AnalysisPriorityModerate = "moderate"
	AnalysisPriorityHigh     = "high"
	AnalysisPriorityUrgent   = "urgent"
)

// MergedConfidence is the heuristic confidence assigned when two providers'
// analyses are combined.
const MergedConfidence = 85

var prioritySeverity = map[string]int{
	AnalysisPriorityLow:      1,
	AnalysisPriorityModerate: 2,
	AnalysisPriorityHigh:     3,
	AnalysisPriorityUrgent:   4,
}

// Merge combines two analyses: arrays are concatenated and de-duplicated
// preserving first-seen order, the highest-severity priority wins, and
// confidence is set to MergedConfidence.
func (a ClinicalAnalysis) Merge(b ClinicalAnalysis) ClinicalAnalysis {
	merged := ClinicalAnalysis{
		Insights:        dedupe(a.Insights, b.Insights),
		Recommendations: dedupe(a.Recommendations, b.Recommendations),
		Themes:          dedupe(a.Themes, b.Themes),
		RiskFactors:     dedupe(a.RiskFactors, b.RiskFactors),
		Priority:        a.Priority,
		Confidence:      MergedConfidence,
	}
	if prioritySeverity[b.Priority] > prioritySeverity[a.Priority] {
		merged.Priority = b.Priority
	}
	if merged.Priority == "" {
		merged.Priority = AnalysisPriorityModerate
	}
	return merged
}

func dedupe(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

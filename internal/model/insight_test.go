package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"therapath.app/insight/internal/model"
)

var _ = Describe("ClinicalAnalysis.Merge", func() {
	It("concatenates and de-duplicates arrays preserving first-seen order", func() {
		a := model.ClinicalAnalysis{
			Insights:    []string{"isolation increasing", "sleep disrupted"},
			Themes:      []string{"avoidance"},
			RiskFactors: []string{"social withdrawal"},
			Priority:    model.AnalysisPriorityModerate,
		}
		b := model.ClinicalAnalysis{
			Insights:    []string{"sleep disrupted", "appetite reduced"},
			Themes:      []string{"avoidance", "grief"},
			RiskFactors: []string{"social withdrawal"},
			Priority:    model.AnalysisPriorityModerate,
		}

		merged := a.Merge(b)
		Expect(merged.Insights).To(Equal([]string{"isolation increasing", "sleep disrupted", "appetite reduced"}))
		Expect(merged.Themes).To(Equal([]string{"avoidance", "grief"}))
		Expect(merged.RiskFactors).To(Equal([]string{"social withdrawal"}))
	})

	DescribeTable("highest-severity priority wins",
		func(a, b, want string) {
			merged := model.ClinicalAnalysis{Priority: a}.Merge(model.ClinicalAnalysis{Priority: b})
			Expect(merged.Priority).To(Equal(want))
		},
		Entry("urgent beats low", model.AnalysisPriorityLow, model.AnalysisPriorityUrgent, model.AnalysisPriorityUrgent),
		Entry("urgent beats low reversed", model.AnalysisPriorityUrgent, model.AnalysisPriorityLow, model.AnalysisPriorityUrgent),
		Entry("high beats moderate", model.AnalysisPriorityModerate, model.AnalysisPriorityHigh, model.AnalysisPriorityHigh),
		Entry("equal stays", model.AnalysisPriorityModerate, model.AnalysisPriorityModerate, model.AnalysisPriorityModerate),
		Entry("unknown inputs default to moderate", "", "", model.AnalysisPriorityModerate),
	)

	It("assigns the combined-result confidence constant", func() {
		a := model.ClinicalAnalysis{Confidence: 70}
		b := model.ClinicalAnalysis{Confidence: 95}
		Expect(a.Merge(b).Confidence).To(Equal(model.MergedConfidence))
	})
})

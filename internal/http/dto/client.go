package dto

import (
	"time"

	"therapath.app/insight/internal/model"
)

type CreateClientRequest struct {
	Name        string     `json:"name" binding:"required"`
	Email       *string    `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	ReferralSrc *string    `json:"referral_source,omitempty"`
	Concerns    []string   `json:"presenting_concerns,omitempty"`
}

type CreateClientResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type InsightResponse struct {
	ID        int64                  `json:"id"`
	Type      string                 `json:"type"`
	Analysis  model.ClinicalAnalysis `json:"analysis"`
	Provider  string                 `json:"provider"`
	FromCache bool                   `json:"from_cache"`
	CreatedAt time.Time              `json:"created_at"`
}

type ListInsightsResponse struct {
	Insights []InsightResponse `json:"insights"`
}

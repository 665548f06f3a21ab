package model

import "time"

type Client struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Email       *string    `json:"email,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Status      string     `json:"status"`
	ReferralSrc *string    `json:"referral_source,omitempty"`
	Concerns    []string   `json:"presenting_concerns,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

const (
	ClientStatusActive     = "active"
	ClientStatusInactive   = "inactive"
	ClientStatusDischarged = "discharged"
)

type SessionNote struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	Content   string    `json:"content"`
	SessionAt time.Time `json:"session_at"`
	CreatedAt time.Time `json:"created_at"`
}

type Appointment struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	StartsAt  time.Time `json:"starts_at"`
	EndsAt    time.Time `json:"ends_at"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	AppointmentStatusScheduled = "scheduled"
	AppointmentStatusCompleted = "completed"
	AppointmentStatusCancelled = "cancelled"
)

type Document struct {
	ID          int64     `json:"id"`
	ClientID    *int64    `json:"client_id,omitempty"`
	FileName    string    `json:"file_name"`
	ContentText string    `json:"content_text"`
	CreatedAt   time.Time `json:"created_at"`
}

type TreatmentPlan struct {
	ID        int64     `json:"id"`
	ClientID  int64     `json:"client_id"`
	Goals     []string  `json:"goals"`
	Summary   string    `json:"summary"`
	UpdatedAt time.Time `json:"updated_at"`
}

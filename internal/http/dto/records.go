package dto

import "time"

type CreateSessionNoteRequest struct {
	ClientID  int64      `json:"client_id" binding:"required"`
	Content   string     `json:"content" binding:"required"`
	SessionAt *time.Time `json:"session_at,omitempty"`
}

type CreateSessionNoteResponse struct {
	ID int64 `json:"id"`
}

type CreateAppointmentRequest struct {
	ClientID int64     `json:"client_id" binding:"required"`
	StartsAt time.Time `json:"starts_at" binding:"required"`
	EndsAt   time.Time `json:"ends_at" binding:"required"`
	Notes    *string   `json:"notes,omitempty"`
}

type CreateAppointmentResponse struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

type UploadDocumentRequest struct {
	ClientID    *int64 `json:"client_id,omitempty"`
	FileName    string `json:"file_name" binding:"required"`
	ContentText string `json:"content_text" binding:"required"`
}

type UploadDocumentResponse struct {
	ID int64 `json:"id"`
}

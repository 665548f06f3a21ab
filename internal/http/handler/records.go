package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"therapath.app/insight/common/id"
	"therapath.app/insight/internal/http/dto"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/service"
	"therapath.app/insight/internal/store"
)

type RecordHandler struct {
	store  store.Store
	intake *service.Intake
}

func NewRecordHandler(st store.Store, intake *service.Intake) *RecordHandler {
	return &RecordHandler{store: st, intake: intake}
}

func (h *RecordHandler) CreateSessionNote(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateSessionNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid session note request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sessionAt := time.Now()
	if req.SessionAt != nil {
		sessionAt = *req.SessionAt
	}
	note := &model.SessionNote{
		ID:        id.New(),
		ClientID:  req.ClientID,
		Content:   req.Content,
		SessionAt: sessionAt,
	}
	if err := h.store.SessionNotes().Create(ctx, note); err != nil {
		slog.ErrorContext(ctx, "failed to create session note", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session note"})
		return
	}

	// Saving the note always succeeds independently of its analysis.
	h.intake.OnSessionNoteCreated(ctx, note)

	c.JSON(http.StatusCreated, dto.CreateSessionNoteResponse{ID: note.ID})
}

func (h *RecordHandler) CreateAppointment(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid appointment request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	appt := &model.Appointment{
		ID:       id.New(),
		ClientID: req.ClientID,
		StartsAt: req.StartsAt,
		EndsAt:   req.EndsAt,
		Status:   model.AppointmentStatusScheduled,
		Notes:    req.Notes,
	}
	if err := h.store.Appointments().Create(ctx, appt); err != nil {
		slog.ErrorContext(ctx, "failed to create appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create appointment"})
		return
	}

	c.JSON(http.StatusCreated, dto.CreateAppointmentResponse{ID: appt.ID, Status: appt.Status})
}

func (h *RecordHandler) CompleteAppointment(c *gin.Context) {
	ctx := c.Request.Context()

	apptID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid appointment id"})
		return
	}

	if err := h.store.Appointments().MarkCompleted(ctx, apptID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "appointment not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to complete appointment", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to complete appointment"})
		return
	}

	h.intake.OnAppointmentCompleted(ctx, apptID)

	c.JSON(http.StatusOK, gin.H{"status": model.AppointmentStatusCompleted})
}

func (h *RecordHandler) UploadDocument(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.UploadDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid document request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc := &model.Document{
		ID:          id.New(),
		ClientID:    req.ClientID,
		FileName:    req.FileName,
		ContentText: req.ContentText,
	}
	if err := h.store.Documents().Create(ctx, doc); err != nil {
		slog.ErrorContext(ctx, "failed to store document", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store document"})
		return
	}

	h.intake.OnDocumentUploaded(ctx, doc)

	c.JSON(http.StatusCreated, dto.UploadDocumentResponse{ID: doc.ID})
}

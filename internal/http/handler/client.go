package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"therapath.app/insight/common/id"
	"therapath.app/insight/internal/http/dto"
	"therapath.app/insight/internal/model"
	"therapath.app/insight/internal/service"
	"therapath.app/insight/internal/store"
)

const insightListLimit = 20

type ClientHandler struct {
	store  store.Store
	intake *service.Intake
}

func NewClientHandler(st store.Store, intake *service.Intake) *ClientHandler {
	return &ClientHandler{store: st, intake: intake}
}

func (h *ClientHandler) Create(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid create client request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	client := &model.Client{
		ID:          id.New(),
		Name:        req.Name,
		Email:       req.Email,
		DateOfBirth: req.DateOfBirth,
		Status:      model.ClientStatusActive,
		ReferralSrc: req.ReferralSrc,
		Concerns:    req.Concerns,
	}
	if err := h.store.Clients().Create(ctx, client); err != nil {
		slog.ErrorContext(ctx, "failed to create client", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create client"})
		return
	}

	// Insight generation is supplementary; the create has already succeeded.
	h.intake.OnClientCreated(ctx, client)

	c.JSON(http.StatusCreated, dto.CreateClientResponse{ID: client.ID, Status: client.Status})
}

func (h *ClientHandler) ListInsights(c *gin.Context) {
	ctx := c.Request.Context()

	clientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}

	if _, err := h.store.Clients().GetByID(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load client", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load client"})
		return
	}

	insights, err := h.store.Insights().ListRecentByClient(ctx, clientID, insightListLimit)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list insights", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list insights"})
		return
	}

	resp := dto.ListInsightsResponse{Insights: make([]dto.InsightResponse, 0, len(insights))}
	for _, i := range insights {
		resp.Insights = append(resp.Insights, dto.InsightResponse{
			ID:        i.ID,
			Type:      i.Type,
			Analysis:  i.Analysis,
			Provider:  i.Provider,
			FromCache: i.FromCache,
			CreatedAt: i.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ClientHandler) RefreshTreatmentPlan(c *gin.Context) {
	ctx := c.Request.Context()

	clientID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid client id"})
		return
	}
	if _, err := h.store.Clients().GetByID(ctx, clientID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "client not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load client", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load client"})
		return
	}

	h.intake.RequestTreatmentPlanUpdate(ctx, clientID)
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

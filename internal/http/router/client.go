package router

import (
	"github.com/gin-gonic/gin"

	"therapath.app/insight/internal/http/handler"
)

func ClientRouter(router *gin.RouterGroup, handler *handler.ClientHandler) {
	router.POST("", handler.Create)
	router.GET("/:id/insights", handler.ListInsights)
	router.POST("/:id/treatment-plan/refresh", handler.RefreshTreatmentPlan)
}

func RecordRouter(router *gin.RouterGroup, handler *handler.RecordHandler) {
	router.POST("/session-notes", handler.CreateSessionNote)
	router.POST("/appointments", handler.CreateAppointment)
	router.POST("/appointments/:id/complete", handler.CompleteAppointment)
	router.POST("/documents", handler.UploadDocument)
}

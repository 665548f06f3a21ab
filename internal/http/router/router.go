package router

import (
	"github.com/gin-gonic/gin"

	"therapath.app/insight/internal/fallback"
	"therapath.app/insight/internal/http/handler"
	"therapath.app/insight/internal/service"
	"therapath.app/insight/internal/store"
)

func SetupRoutes(router *gin.Engine, st store.Store, intake *service.Intake, registry *fallback.Registry) {
	// Health reports the last probe result per provider, so operators can see
	// what the availability sweep sees.
	router.GET("/health", func(c *gin.Context) {
		providers := make([]gin.H, 0, registry.Len())
		for _, e := range registry.Entries() {
			providers = append(providers, gin.H{
				"name":      e.Provider.Name(),
				"priority":  e.Priority,
				"available": e.Available(),
			})
		}
		c.JSON(200, gin.H{"status": "ok", "providers": providers})
	})

	v1 := router.Group("/api/v1")
	{
		clientHandler := handler.NewClientHandler(st, intake)
		ClientRouter(v1.Group("/clients"), clientHandler)

		recordHandler := handler.NewRecordHandler(st, intake)
		RecordRouter(v1, recordHandler)
	}
}

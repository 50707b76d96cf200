package api

import (
	"net/http"

	"duckmail-archive/internal/archive/delivery"
	"duckmail-archive/internal/archive/usecase"
	"duckmail-archive/pkg/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	r *gin.Engine,
	cfg *config.Config,
	syncUsecase usecase.SyncUsecase,
	mailboxUsecase usecase.MailboxUsecase,
	messageUsecase usecase.MessageUsecase,
	maintenanceUsecase usecase.MaintenanceUsecase,
) {
	syncHandler := delivery.NewSyncHandler(syncUsecase)
	mailboxHandler := delivery.NewMailboxHandler(mailboxUsecase)
	messageHandler := delivery.NewMessageHandler(messageUsecase)
	maintenanceHandler := delivery.NewMaintenanceHandler(maintenanceUsecase)

	api := r.Group("/api")
	{
		// Health check (no auth required)
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		archive := api.Group("/archive")
		archive.Use(delivery.AdminAuthMiddleware(cfg.AdminToken))
		{
			mailboxes := archive.Group("/mailboxes")
			{
				mailboxes.POST("", mailboxHandler.Upsert)
				mailboxes.GET("", mailboxHandler.List)
				mailboxes.GET("/:id", mailboxHandler.Get)
				mailboxes.PATCH("/:id/active", mailboxHandler.SetActive)
				mailboxes.DELETE("/:id", mailboxHandler.Delete)
				mailboxes.POST("/:id/test-login", mailboxHandler.TestLogin)
			}

			messages := archive.Group("/messages")
			{
				messages.GET("", messageHandler.Search)
				messages.GET("/:id", messageHandler.GetDetail)
				messages.DELETE("/:id", messageHandler.Delete)
			}

			sync := archive.Group("/sync")
			{
				sync.POST("/run", syncHandler.Run)
				sync.POST("/run-all", syncHandler.RunAll)
				sync.POST("/dispatch", syncHandler.Dispatch)
				sync.POST("/background", syncHandler.Process)
				sync.POST("/scheduled", syncHandler.Scheduled)
				sync.GET("/scheduler-config", syncHandler.GetSchedulerConfig)
				sync.PUT("/scheduler-config", syncHandler.UpdateSchedulerConfig)
				sync.GET("/runs", syncHandler.ListRuns)
				sync.GET("/runs/:id/events", syncHandler.ListRunEvents)
				sync.GET("/errors", syncHandler.ListErrors)
			}

			archive.GET("/metrics", syncHandler.Metrics)
			archive.POST("/maintenance/ttl", maintenanceHandler.RunTTL)
		}
	}
}

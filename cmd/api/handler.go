package api

import (
	"duckmail-archive/internal/archive/usecase"
	"duckmail-archive/pkg/config"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	engine *gin.Engine
}

func NewHandler(
	cfg *config.Config,
	syncUsecase usecase.SyncUsecase,
	mailboxUsecase usecase.MailboxUsecase,
	messageUsecase usecase.MessageUsecase,
	maintenanceUsecase usecase.MaintenanceUsecase,
) *Handler {
	engine := gin.Default()
	SetupRoutes(engine, cfg, syncUsecase, mailboxUsecase, messageUsecase, maintenanceUsecase)
	return &Handler{engine: engine}
}

func (h *Handler) Start(addr string) error {
	return h.engine.Run(addr)
}

package delivery

import (
	"net/http"

	archdto "duckmail-archive/internal/archive/dto"
	"duckmail-archive/internal/archive/usecase"

	"github.com/gin-gonic/gin"
)

type MaintenanceHandler struct {
	maintenanceUsecase usecase.MaintenanceUsecase
}

func NewMaintenanceHandler(maintenanceUsecase usecase.MaintenanceUsecase) *MaintenanceHandler {
	return &MaintenanceHandler{
		maintenanceUsecase: maintenanceUsecase,
	}
}

func (h *MaintenanceHandler) RunTTL(c *gin.Context) {
	var req archdto.TTLRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.maintenanceUsecase.RunTTL(c.Request.Context(), req.RetentionDays, req.DryRun)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

package delivery

import (
	"net/http"

	"duckmail-archive/internal/archive/domain"
	archdto "duckmail-archive/internal/archive/dto"
	"duckmail-archive/internal/archive/repository"
	"duckmail-archive/internal/archive/usecase"

	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	syncUsecase usecase.SyncUsecase
}

func NewSyncHandler(syncUsecase usecase.SyncUsecase) *SyncHandler {
	return &SyncHandler{
		syncUsecase: syncUsecase,
	}
}

// Run syncs the requested mailboxes inline and returns the per-mailbox
// outcomes.
func (h *SyncHandler) Run(c *gin.Context) {
	var req archdto.RunSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.syncUsecase.RunMailboxSync(c.Request.Context(), req.MailboxIDs, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	succeeded := 0
	for _, result := range results {
		if result.Status == domain.RunStatusSuccess {
			succeeded++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
		"results":   results,
	})
}

// RunAll queues a full sync for all active mailboxes and returns immediately.
func (h *SyncHandler) RunAll(c *gin.Context) {
	var req archdto.RunSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncUsecase.QueueAllMailboxes(c.Request.Context(), req.MailboxIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h *SyncHandler) Dispatch(c *gin.Context) {
	var req archdto.DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncUsecase.DispatchDueRuns(c.Request.Context(), req.MaxQueue, req.DueMinutes)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) Process(c *gin.Context) {
	var req archdto.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncUsecase.ProcessQueuedRuns(c.Request.Context(), req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) Scheduled(c *gin.Context) {
	var req archdto.ScheduledCycleRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.syncUsecase.RunScheduledCycle(c.Request.Context(), usecase.ScheduledCycleOptions{
		Force:        req.Force,
		DueMinutes:   req.DueMinutes,
		MaxQueue:     req.MaxQueue,
		ProcessLimit: req.ProcessLimit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SyncHandler) GetSchedulerConfig(c *gin.Context) {
	settings, err := h.syncUsecase.GetSchedulerSettings()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *SyncHandler) UpdateSchedulerConfig(c *gin.Context) {
	var req archdto.UpdateSchedulerSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.syncUsecase.UpdateSchedulerSettings(repository.UpdateSchedulerSettingsInput{
		Enabled:         req.Enabled,
		IntervalMinutes: req.IntervalMinutes,
		MaxQueue:        req.MaxQueue,
		ProcessLimit:    req.ProcessLimit,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *SyncHandler) ListRuns(c *gin.Context) {
	runs, err := h.syncUsecase.ListRecentRuns(intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

func (h *SyncHandler) ListRunEvents(c *gin.Context) {
	events, err := h.syncUsecase.ListRunEvents(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (h *SyncHandler) ListErrors(c *gin.Context) {
	errs, err := h.syncUsecase.ListRecentErrors(intQuery(c, "limit", 20))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": errs})
}

func (h *SyncHandler) Metrics(c *gin.Context) {
	metrics, err := h.syncUsecase.Metrics(intQuery(c, "window_hours", 24))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

package delivery

import (
	"net/http"
	"strconv"
	"time"

	archdto "duckmail-archive/internal/archive/dto"
	"duckmail-archive/internal/archive/repository"
	"duckmail-archive/internal/archive/usecase"

	"github.com/gin-gonic/gin"
)

type MessageHandler struct {
	messageUsecase usecase.MessageUsecase
}

func NewMessageHandler(messageUsecase usecase.MessageUsecase) *MessageHandler {
	return &MessageHandler{
		messageUsecase: messageUsecase,
	}
}

func (h *MessageHandler) Search(c *gin.Context) {
	params := repository.SearchMessagesParams{
		Mailbox: c.Query("mailbox"),
		Domain:  c.Query("domain"),
		From:    c.Query("from"),
		Subject: c.Query("subject"),
		Q:       c.Query("q"),
	}
	params.Page = intQuery(c, "page", 1)
	params.PageSize = intQuery(c, "page_size", 50)
	params.IncludeDeleted = c.Query("include_deleted") == "true"

	if start := c.Query("start"); start != "" {
		parsed, err := time.Parse(time.RFC3339, start)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC3339"})
			return
		}
		params.Start = &parsed
	}
	if end := c.Query("end"); end != "" {
		parsed, err := time.Parse(time.RFC3339, end)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC3339"})
			return
		}
		params.End = &parsed
	}

	items, total, err := h.messageUsecase.Search(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":  items,
		"total":     total,
		"page":      params.Page,
		"page_size": params.PageSize,
	})
}

func (h *MessageHandler) GetDetail(c *gin.Context) {
	detail, err := h.messageUsecase.GetDetail(c.Param("id"))
	if err != nil {
		if err == usecase.ErrMessageNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *MessageHandler) Delete(c *gin.Context) {
	var req archdto.DeleteMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Mode == "" {
		req.Mode = c.Query("mode")
	}

	result, err := h.messageUsecase.Delete(c.Request.Context(), c.Param("id"), req.Mode)
	if err != nil {
		if err == usecase.ErrMessageNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func intQuery(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return parsed
}

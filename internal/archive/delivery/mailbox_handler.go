package delivery

import (
	"net/http"

	archdto "duckmail-archive/internal/archive/dto"
	"duckmail-archive/internal/archive/usecase"

	"github.com/gin-gonic/gin"
)

type MailboxHandler struct {
	mailboxUsecase usecase.MailboxUsecase
}

func NewMailboxHandler(mailboxUsecase usecase.MailboxUsecase) *MailboxHandler {
	return &MailboxHandler{
		mailboxUsecase: mailboxUsecase,
	}
}

func (h *MailboxHandler) Upsert(c *gin.Context) {
	var req archdto.UpsertMailboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.mailboxUsecase.Upsert(req.Email, req.Password, req.Provider)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *MailboxHandler) List(c *gin.Context) {
	mailboxes, err := h.mailboxUsecase.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mailboxes": mailboxes})
}

func (h *MailboxHandler) Get(c *gin.Context) {
	view, err := h.mailboxUsecase.Get(c.Param("id"))
	if err != nil {
		if err == usecase.ErrMailboxNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *MailboxHandler) SetActive(c *gin.Context) {
	var req archdto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.mailboxUsecase.SetActive(c.Param("id"), *req.IsActive)
	if err != nil {
		if err == usecase.ErrMailboxNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *MailboxHandler) Delete(c *gin.Context) {
	deleted, err := h.mailboxUsecase.Delete(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (h *MailboxHandler) TestLogin(c *gin.Context) {
	result, err := h.mailboxUsecase.TestLogin(c.Request.Context(), c.Param("id"))
	if err != nil {
		if err == usecase.ErrMailboxNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "mailbox not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

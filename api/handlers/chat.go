package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

type ChatHandler struct {
	service wizard.WorkflowController
	logger  logger.Logger
}

func NewChatHandler(service wizard.WorkflowController, log logger.Logger) *ChatHandler {
	return &ChatHandler{service: service, logger: log}
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *ChatHandler) Ask(c *gin.Context) {
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid chat request", err)
		return
	}

	answer, err := h.service.Ask(c.Request.Context(), c.Param("id"), req.Question)
	if err != nil {
		handleError(c, h.logger, "Failed to answer question", err)
		return
	}
	c.JSON(http.StatusOK, answer)
}

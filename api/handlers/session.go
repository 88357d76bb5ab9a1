package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

type SessionHandler struct {
	service wizard.WorkflowController
	logger  logger.Logger
}

func NewSessionHandler(service wizard.WorkflowController, log logger.Logger) *SessionHandler {
	return &SessionHandler{service: service, logger: log}
}

type createSessionRequest struct {
	TTLMinutes int    `json:"ttlMinutes"`
	Language   string `json:"language"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		badRequest(c, "Invalid session request", err)
		return
	}

	sess, err := h.service.CreateSession(req.TTLMinutes, req.Language)
	if err != nil {
		handleError(c, h.logger, "Failed to create session", err)
		return
	}

	state, err := h.service.State(sess.ID)
	if err != nil {
		handleError(c, h.logger, "Failed to read session state", err)
		return
	}

	c.JSON(http.StatusCreated, state)
}

func (h *SessionHandler) State(c *gin.Context) {
	state, err := h.service.State(c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to read session state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) Restart(c *gin.Context) {
	id := c.Param("id")
	if err := h.service.RestartSession(c.Request.Context(), id); err != nil {
		handleError(c, h.logger, "Failed to restart session", err)
		return
	}

	state, err := h.service.State(id)
	if err != nil {
		handleError(c, h.logger, "Failed to read session state", err)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h *SessionHandler) Close(c *gin.Context) {
	if err := h.service.CloseSession(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, h.logger, "Failed to close session", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session closed"})
}

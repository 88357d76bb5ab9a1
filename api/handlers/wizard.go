package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// WizardHandler covers navigation, parameters, review, and processing.
type WizardHandler struct {
	service wizard.WorkflowController
	logger  logger.Logger
}

func NewWizardHandler(service wizard.WorkflowController, log logger.Logger) *WizardHandler {
	return &WizardHandler{service: service, logger: log}
}

func (h *WizardHandler) GetParameters(c *gin.Context) {
	params, err := h.service.Parameters(c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to read parameters", err)
		return
	}
	c.JSON(http.StatusOK, params)
}

// PutParameters accepts a flat object of parameter keys to values and
// applies each one. Unknown keys abort the request before any later key is
// applied; earlier keys stay set (the store performs no validation).
func (h *WizardHandler) PutParameters(c *gin.Context) {
	var updates map[string]any
	if err := c.ShouldBindJSON(&updates); err != nil {
		badRequest(c, "Invalid parameters payload", err)
		return
	}
	if len(updates) == 0 {
		badRequest(c, "No parameters provided", nil)
		return
	}

	id := c.Param("id")
	for key, value := range updates {
		if err := h.service.SetParameter(id, key, value); err != nil {
			if errors.Is(err, wizard.ErrSessionNotFound) {
				handleError(c, h.logger, "Failed to set parameter", err)
				return
			}
			badRequest(c, "Failed to set parameter "+key, err)
			return
		}
	}

	params, err := h.service.Parameters(id)
	if err != nil {
		handleError(c, h.logger, "Failed to read parameters", err)
		return
	}
	c.JSON(http.StatusOK, params)
}

func (h *WizardHandler) Advance(c *gin.Context) {
	stage, err := h.service.Advance(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to advance", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activeStage":     stage,
		"activeStageName": stage.String(),
	})
}

func (h *WizardHandler) Retreat(c *gin.Context) {
	stage, err := h.service.Retreat(c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to retreat", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"activeStage":     stage,
		"activeStageName": stage.String(),
	})
}

func (h *WizardHandler) RunReview(c *gin.Context) {
	outcome, err := h.service.RunReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to run review", err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *WizardHandler) RetryReview(c *gin.Context) {
	outcome, err := h.service.RetryReview(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to retry review", err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *WizardHandler) GetReview(c *gin.Context) {
	outcome, err := h.service.ReviewOutcome(c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to read review outcome", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome})
}

type startProcessingRequest struct {
	JobIDs []string `json:"jobIds"`
}

func (h *WizardHandler) StartProcessing(c *gin.Context) {
	var req startProcessingRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		badRequest(c, "Invalid processing request", err)
		return
	}

	jobs, err := h.service.StartProcessing(c.Request.Context(), c.Param("id"), req.JobIDs...)
	if err != nil {
		handleError(c, h.logger, "Failed to start processing", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"jobs": jobs})
}

func (h *WizardHandler) Progress(c *gin.Context) {
	progress, err := h.service.Progress(c.Param("id"))
	if err != nil {
		handleError(c, h.logger, "Failed to read progress", err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

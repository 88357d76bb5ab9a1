package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/internal/utils/validator"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

type Handlers struct {
	Session  *SessionHandler
	Wizard   *WizardHandler
	Document *DocumentHandler
	Chat     *ChatHandler
}

func NewHandlers(ctrl wizard.WorkflowController, log logger.Logger) *Handlers {
	return &Handlers{
		Session:  NewSessionHandler(ctrl, log),
		Wizard:   NewWizardHandler(ctrl, log),
		Document: NewDocumentHandler(ctrl, log),
		Chat:     NewChatHandler(ctrl, log),
	}
}

// ErrorResponse is the uniform error payload. Code and ActualTokens are set
// for typed acquisition rejections.
type ErrorResponse struct {
	Error        string `json:"error,omitempty"`
	Message      string `json:"message"`
	Code         string `json:"code,omitempty"`
	ActualTokens int    `json:"actualTokens,omitempty"`
}

// handleError maps service errors onto status codes: gate rejections are
// 422 with the typed payload, locked stages and running stages are 409,
// unknown sessions are 404.
func handleError(c *gin.Context, log logger.Logger, message string, err error) {
	var rej *validator.Rejection
	var locked *wizard.StageLockedError

	switch {
	case errors.As(err, &rej):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message:      rej.Message,
			Code:         string(rej.Code),
			ActualTokens: rej.ActualTokens,
		})
	case errors.As(err, &locked):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: locked.Reason,
			Error:   locked.Error(),
		})
	case errors.Is(err, wizard.ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "a run is already in progress",
			Error:   err.Error(),
		})
	case errors.Is(err, wizard.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: "session not found",
		})
	default:
		log.Error(message,
			logger.String("path", c.Request.URL.Path),
			logger.Error(err),
		)
		response := ErrorResponse{Message: message}
		if err != nil {
			response.Error = err.Error()
		}
		c.JSON(http.StatusInternalServerError, response)
	}
}

func badRequest(c *gin.Context, message string, err error) {
	response := ErrorResponse{Message: message}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(http.StatusBadRequest, response)
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/internal/utils/validator"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// DocumentHandler covers the acquiring stage: uploads and crawls.
type DocumentHandler struct {
	service wizard.WorkflowController
	logger  logger.Logger
}

func NewDocumentHandler(service wizard.WorkflowController, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{service: service, logger: log}
}

type fileRejection struct {
	Filename     string `json:"filename"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	ActualTokens int    `json:"actualTokens,omitempty"`
}

// Upload accepts one or many files under the "files" form field. Contents
// are read concurrently, but admission into the document set keeps the
// request's file order.
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		badRequest(c, "No files provided", nil)
		return
	}

	contents := make([][]byte, len(files))
	var g errgroup.Group
	for i, header := range files {
		i, header := i, header
		g.Go(func() error {
			data, err := readFile(header)
			if err != nil {
				return fmt.Errorf("read %q: %w", header.Filename, err)
			}
			contents[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		badRequest(c, "Failed to read uploaded files", err)
		return
	}

	id := c.Param("id")
	var admitted []*models.AcquiredDocument
	var rejections []fileRejection

	for i, header := range files {
		doc, err := h.service.AcquireFile(c.Request.Context(), id, header.Filename, contents[i])
		if err != nil {
			var rej *validator.Rejection
			if errors.As(err, &rej) {
				rejections = append(rejections, fileRejection{
					Filename:     header.Filename,
					Code:         string(rej.Code),
					Message:      rej.Message,
					ActualTokens: rej.ActualTokens,
				})
				continue
			}
			handleError(c, h.logger, "Failed to acquire file", err)
			return
		}
		admitted = append(admitted, doc)
	}

	status := http.StatusOK
	if len(admitted) == 0 {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"documents":  admitted,
		"rejections": rejections,
	})
}

func readFile(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

type submitCrawlRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *DocumentHandler) SubmitCrawl(c *gin.Context) {
	var req submitCrawlRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid crawl request", err)
		return
	}

	taskID, err := h.service.SubmitCrawl(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		handleError(c, h.logger, "Failed to submit crawl", err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"taskId": taskID})
}

func (h *DocumentHandler) ResolveCrawl(c *gin.Context) {
	res, err := h.service.ResolveCrawl(c.Request.Context(), c.Param("id"), c.Param("taskId"))
	if err != nil {
		handleError(c, h.logger, "Failed to resolve crawl", err)
		return
	}

	status := http.StatusOK
	if res.Pending {
		status = http.StatusAccepted
	} else if res.Rejection != nil {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

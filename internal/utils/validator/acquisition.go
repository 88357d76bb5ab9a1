package validator

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/feichai0017/ingestion-wizard/internal/models"
	"github.com/feichai0017/ingestion-wizard/internal/params"
	"github.com/feichai0017/ingestion-wizard/internal/preview"
	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// MinCrawlTokens is the floor below which a crawl result is rejected even
// when it is non-empty.
const MinCrawlTokens = 50

// RejectionCode identifies why content was refused at the gate.
type RejectionCode string

const (
	RejUnsupportedType  RejectionCode = "UNSUPPORTED_TYPE"
	RejTooLarge         RejectionCode = "TOO_LARGE"
	RejEmptyFile        RejectionCode = "EMPTY_FILE"
	RejCrawlFailed      RejectionCode = "CRAWL_FAILED"
	RejNoContent        RejectionCode = "NO_CONTENT"
	RejInsufficientData RejectionCode = "INSUFFICIENT_DATA"
)

// Rejection is a typed refusal with a user-displayable message. It never
// blocks the rest of the session; the user may try again with other content.
type Rejection struct {
	Code         RejectionCode `json:"code"`
	Message      string        `json:"message"`
	ActualTokens int           `json:"actualTokens,omitempty"`
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("%s: %s", r.Code, r.Message)
}

// FileInput is the metadata a file upload presents to the gate.
type FileInput struct {
	Name      string
	SizeBytes int64
}

// AcquisitionGate validates incoming files and crawl results against the
// session's configured limits before they join the document set. It has no
// side effects; the caller decides whether to admit the returned document.
type AcquisitionGate struct {
	params *params.Store
	logger logger.Logger
}

func NewAcquisitionGate(ps *params.Store, log logger.Logger) *AcquisitionGate {
	return &AcquisitionGate{
		params: ps,
		logger: log,
	}
}

// ValidateFile checks extension membership and size limits, in that order.
func (g *AcquisitionGate) ValidateFile(file FileInput) (*models.AcquiredDocument, *Rejection) {
	p := g.params.Get()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file.Name)), ".")
	if !containsFold(p.SupportedFileTypes, ext) {
		return nil, g.reject(&Rejection{
			Code:    RejUnsupportedType,
			Message: fmt.Sprintf("file type %q is not supported (allowed: %s)", ext, strings.Join(p.SupportedFileTypes, ", ")),
		}, file.Name)
	}

	if file.SizeBytes <= 0 {
		return nil, g.reject(&Rejection{
			Code:    RejEmptyFile,
			Message: fmt.Sprintf("file %q is empty", file.Name),
		}, file.Name)
	}

	limit := int64(p.MaxFileSizeMB) * 1048576
	if file.SizeBytes > limit {
		return nil, g.reject(&Rejection{
			Code: RejTooLarge,
			Message: fmt.Sprintf("file size %s exceeds the %s limit",
				humanize.Bytes(uint64(file.SizeBytes)), humanize.Bytes(uint64(limit))),
		}, file.Name)
	}

	return &models.AcquiredDocument{
		ID:         uuid.New().String(),
		Filename:   file.Name,
		Origin:     models.OriginFile,
		SizeBytes:  file.SizeBytes,
		UploadedAt: time.Now(),
	}, nil
}

// ValidateCrawlResult checks extraction status, discovered content, and the
// minimum token floor, in that order.
func (g *AcquisitionGate) ValidateCrawlResult(res *crawler.CrawlResult) (*models.AcquiredDocument, *Rejection) {
	if res.ExtractionStatus == crawler.ExtractionFailed || res.ErrorCode == crawler.ErrCodeProcessingFailed {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "the crawler could not extract content from the site"
		}
		return nil, g.reject(&Rejection{
			Code:    RejCrawlFailed,
			Message: msg,
		}, res.SourceURL)
	}

	if res.PagesFound == 0 || res.TotalTokens == 0 {
		return nil, g.reject(&Rejection{
			Code:    RejNoContent,
			Message: "no readable content was found on the site",
		}, res.SourceURL)
	}

	if res.TotalTokens < MinCrawlTokens {
		return nil, g.reject(&Rejection{
			Code:         RejInsufficientData,
			Message:      fmt.Sprintf("only %d tokens found, at least %d are required", res.TotalTokens, MinCrawlTokens),
			ActualTokens: res.TotalTokens,
		}, res.SourceURL)
	}

	var size int64
	var firstPage string
	for _, page := range res.CrawledPages {
		size += int64(len(page.Content))
		if firstPage == "" && page.Content != "" {
			firstPage = page.Content
		}
	}

	return &models.AcquiredDocument{
		ID:          uuid.New().String(),
		Filename:    crawlFilename(res),
		Origin:      models.OriginCrawler,
		SizeBytes:   size,
		TokenCount:  res.TotalTokens,
		UploadedAt:  time.Now(),
		PreviewText: preview.Snippet(firstPage),
	}, nil
}

func (g *AcquisitionGate) reject(r *Rejection, source string) *Rejection {
	g.logger.Info("Content rejected at acquisition gate",
		logger.String("code", string(r.Code)),
		logger.String("source", source),
	)
	return r
}

func crawlFilename(res *crawler.CrawlResult) string {
	if res.SourceURL != "" {
		return res.SourceURL
	}
	if len(res.CrawledPages) > 0 {
		if res.CrawledPages[0].Title != "" {
			return res.CrawledPages[0].Title
		}
		return res.CrawledPages[0].URL
	}
	return "crawled-site"
}

func containsFold(list []string, item string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimPrefix(s, "."), item) {
			return true
		}
	}
	return false
}

package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// Extraction status values reported by the crawl service.
const (
	ExtractionCompleted = "COMPLETED"
	ExtractionPartial   = "PARTIAL"
	ExtractionFailed    = "FAILED"
)

// ErrCodeProcessingFailed marks a crawl whose content could not be extracted.
const ErrCodeProcessingFailed = "ERR_PROCESSING_FAILED"

// CrawlRequest is the submission sent to the crawl service.
type CrawlRequest struct {
	URL       string `json:"url"`
	MaxPages  int    `json:"max_pages"`
	MaxTokens int    `json:"max_tokens"`
}

// CrawledPage is one page discovered and extracted by the crawler.
type CrawledPage struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	TokenCount int    `json:"token_count"`
}

// CrawlResult is the crawl service's acquisition response.
type CrawlResult struct {
	ExtractionStatus string        `json:"extraction_status"`
	ErrorCode        string        `json:"error_code,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	CrawledPages     []CrawledPage `json:"crawled_pages"`
	PagesFound       int           `json:"pages_found"`
	TotalTokens      int           `json:"total_tokens"`
	CrawlStatus      string        `json:"crawl_status"`
	SourceURL        string        `json:"source_url,omitempty"`
}

// Client submits crawl requests to the external crawl service.
type Client interface {
	Crawl(ctx context.Context, req *CrawlRequest) (*CrawlResult, error)
}

type httpClient struct {
	baseURL string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg *config.CrawlerConfig, log logger.Logger) Client {
	return &httpClient{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
}

func (c *httpClient) Crawl(ctx context.Context, req *CrawlRequest) (*CrawlResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal crawl request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/crawl", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build crawl request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("crawl service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("crawl service returned status %d", resp.StatusCode)
	}

	var result CrawlResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode crawl response: %w", err)
	}
	if result.SourceURL == "" {
		result.SourceURL = req.URL
	}

	c.logger.Info("Crawl completed",
		logger.String("url", req.URL),
		logger.Int("pagesFound", result.PagesFound),
		logger.Int("totalTokens", result.TotalTokens),
	)

	return &result, nil
}

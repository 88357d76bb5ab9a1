package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
)

// Moderation status values.
const (
	StatusApproved = "APPROVED"
	StatusBlocked  = "BLOCKED"
)

// Request is one (content, source) pair checked by the moderation service.
type Request struct {
	Content         string `json:"content"`
	SourceReference string `json:"source_reference"`
	AcademicMode    bool   `json:"academic_mode"`
}

// Result is the per-item verdict.
type Result struct {
	Status            string   `json:"status"`
	IsApproved        bool     `json:"is_approved"`
	BlockedCategories []string `json:"blocked_categories"`
	Reason            string   `json:"reason,omitempty"`
}

// Client checks content against the external moderation service. One call
// per pair; the caller batches pairs into sequential calls.
type Client interface {
	Check(ctx context.Context, req *Request) (*Result, error)
}

type httpClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  logger.Logger
}

func NewClient(cfg *config.ModerationConfig, log logger.Logger) Client {
	return &httpClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  log,
	}
}

func (c *httpClient) Check(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal moderation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/moderation/check", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build moderation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("moderation service unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation service returned status %d", resp.StatusCode)
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode moderation response: %w", err)
	}

	c.logger.Debug("Moderation check completed",
		logger.String("sourceReference", req.SourceReference),
		logger.Bool("approved", result.IsApproved),
	)

	return &result, nil
}

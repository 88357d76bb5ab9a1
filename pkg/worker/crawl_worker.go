package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/queue"
	"github.com/feichai0017/ingestion-wizard/pkg/storage"
)

// CrawlWorker executes crawl:acquire tasks. It calls the external crawl
// service, stores the extracted text, and publishes the result through the
// queue's status store for the API server to collect.
type CrawlWorker struct {
	BaseWorker
	crawler crawler.Client
	store   storage.Storage
	queue   queue.Queue
}

func NewCrawlWorker(
	cfg *Config,
	crawlerClient crawler.Client,
	store storage.Storage,
	q queue.Queue,
	log logger.Logger,
) (*CrawlWorker, error) {
	server := asynq.NewServer(
		asynq.RedisClientOpt{Addr: cfg.RedisAddr, DB: cfg.RedisDB},
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				return time.Duration(n) * time.Minute
			},
		},
	)

	w := &CrawlWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log,
			stopChan: make(chan struct{}),
		},
		crawler: crawlerClient,
		store:   store,
		queue:   q,
	}

	w.mux.HandleFunc(queue.TaskTypeCrawlAcquire, w.handleCrawlAcquire)
	return w, nil
}

func (w *CrawlWorker) handleCrawlAcquire(ctx context.Context, t *asynq.Task) error {
	var task queue.CrawlTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("failed to unmarshal crawl task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal crawl task: %w", err)
	}

	if task.ID == "" || task.SessionID == "" || task.URL == "" {
		return fmt.Errorf("invalid crawl task: missing required fields")
	}

	w.logger.Info("crawling url",
		logger.String("taskId", task.ID),
		logger.String("sessionId", task.SessionID),
		logger.String("url", task.URL),
	)

	status := &queue.CrawlStatus{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    queue.StatusRunning,
		StartedAt: time.Now(),
	}
	if err := w.queue.SaveStatus(ctx, status); err != nil {
		w.logger.Error("failed to save crawl status", logger.Error(err))
	}

	result, err := w.crawler.Crawl(ctx, &crawler.CrawlRequest{
		URL:       task.URL,
		MaxPages:  task.MaxPages,
		MaxTokens: task.MaxTokens,
	})
	if err != nil {
		status.Status = queue.StatusFailed
		status.Error = err.Error()
		status.FinishedAt = time.Now()
		if saveErr := w.queue.SaveStatus(ctx, status); saveErr != nil {
			w.logger.Error("failed to save crawl failure", logger.Error(saveErr))
		}
		return err
	}

	// The gate decides whether the result is admissible; the worker only
	// persists what came back. Text is stored even for partial crawls.
	if text := concatPages(result.CrawledPages); text != "" {
		key := fmt.Sprintf("sessions/%s/crawl/%s", task.SessionID, task.ID)
		if _, err := w.store.Store(ctx, strings.NewReader(text), key); err != nil {
			status.Status = queue.StatusFailed
			status.Error = err.Error()
			status.FinishedAt = time.Now()
			if saveErr := w.queue.SaveStatus(ctx, status); saveErr != nil {
				w.logger.Error("failed to save crawl failure", logger.Error(saveErr))
			}
			return err
		}
		status.StorageKey = key
	}

	status.Status = queue.StatusCompleted
	status.Result = result
	status.FinishedAt = time.Now()
	if err := w.queue.SaveStatus(ctx, status); err != nil {
		w.logger.Error("failed to save crawl completion", logger.Error(err))
		return err
	}

	w.logger.Info("crawl finished",
		logger.String("taskId", task.ID),
		logger.String("status", result.ExtractionStatus),
		logger.Int("pages", result.PagesFound),
		logger.Int("tokens", result.TotalTokens),
	)

	return nil
}

func concatPages(pages []crawler.CrawledPage) string {
	var b strings.Builder
	for _, page := range pages {
		content := strings.TrimSpace(page.Content)
		if content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if page.Title != "" {
			b.WriteString(page.Title)
			b.WriteString("\n")
		}
		b.WriteString(content)
	}
	return b.String()
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
)

// TaskTypeCrawlAcquire asks a worker to crawl a URL for a session.
const TaskTypeCrawlAcquire = "crawl:acquire"

// Crawl task status values persisted to redis.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// statusTTL keeps finished crawl statuses around long enough for the client
// to collect them.
const statusTTL = 24 * time.Hour

// ErrStatusNotFound is returned when no status exists for a task ID.
var ErrStatusNotFound = errors.New("crawl status not found")

// CrawlTask is the payload of a crawl:acquire task.
type CrawlTask struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	URL       string    `json:"url"`
	MaxPages  int       `json:"maxPages"`
	MaxTokens int       `json:"maxTokens"`
	CreatedAt time.Time `json:"createdAt"`
}

// CrawlStatus is the visible state of a crawl task. Result and StorageKey
// are set once the worker finishes; Error carries the failure reason.
type CrawlStatus struct {
	TaskID     string               `json:"taskId"`
	SessionID  string               `json:"sessionId"`
	Status     string               `json:"status"`
	Error      string               `json:"error,omitempty"`
	Result     *crawler.CrawlResult `json:"result,omitempty"`
	StorageKey string               `json:"storageKey,omitempty"`
	StartedAt  time.Time            `json:"startedAt"`
	FinishedAt time.Time            `json:"finishedAt,omitempty"`
}

// Queue enqueues crawl tasks and tracks their status in redis. The API
// server enqueues and polls; cmd/worker executes and saves.
type Queue interface {
	Enqueue(ctx context.Context, task *CrawlTask) error
	GetStatus(ctx context.Context, taskID string) (*CrawlStatus, error)
	SaveStatus(ctx context.Context, status *CrawlStatus) error
	Close() error
}

// AsynqQueue implements Queue on asynq with a redis status store.
type AsynqQueue struct {
	client  *asynq.Client
	redis   *redis.Client
	retries int
	timeout time.Duration
}

func NewAsynqQueue(cfg *config.QueueConfig) (*AsynqQueue, error) {
	redisOpt := asynq.RedisClientOpt{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	return &AsynqQueue{
		client:  asynq.NewClient(redisOpt),
		redis:   redisClient,
		retries: cfg.MaxRetries,
		timeout: cfg.ProcessTimeout,
	}, nil
}

func statusKey(taskID string) string {
	return fmt.Sprintf("crawl_status:%s", taskID)
}

// Enqueue submits the task and records a pending status so polling works
// before a worker picks it up.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *CrawlTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(q.retries),
		asynq.Timeout(q.timeout),
		asynq.TaskID(task.ID),
	}

	t := asynq.NewTask(TaskTypeCrawlAcquire, payload, opts...)
	if _, err := q.client.EnqueueContext(ctx, t); err != nil {
		return fmt.Errorf("failed to enqueue crawl task: %w", err)
	}

	return q.SaveStatus(ctx, &CrawlStatus{
		TaskID:    task.ID,
		SessionID: task.SessionID,
		Status:    StatusPending,
		StartedAt: time.Now(),
	})
}

func (q *AsynqQueue) GetStatus(ctx context.Context, taskID string) (*CrawlStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get crawl status: %w", err)
	}

	var status CrawlStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal crawl status: %w", err)
	}
	return &status, nil
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *CrawlStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl status: %w", err)
	}

	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, statusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save crawl status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return err
	}
	return q.redis.Close()
}

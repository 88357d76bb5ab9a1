package config

import (
	"sync"
	"time"
)

var (
	queueOnce   sync.Once
	queueConfig *QueueConfig
)

// QueueConfig covers the asynq queue and its redis backend.
type QueueConfig struct {
	RedisAddr      string
	RedisDB        int
	MaxRetries     int
	RetryDelay     time.Duration
	ProcessTimeout time.Duration
	Concurrency    int
}

func GetQueueConfig() *QueueConfig {
	queueOnce.Do(func() {
		loadEnv()

		queueConfig = &QueueConfig{
			RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
			RedisDB:        getEnvInt("REDIS_DB", 0),
			MaxRetries:     getEnvInt("QUEUE_MAX_RETRIES", 3),
			RetryDelay:     time.Duration(getEnvInt("QUEUE_RETRY_DELAY_SEC", 30)) * time.Second,
			ProcessTimeout: time.Duration(getEnvInt("QUEUE_PROCESS_TIMEOUT_MIN", 10)) * time.Minute,
			Concurrency:    getEnvInt("QUEUE_CONCURRENCY", 4),
		}
	})
	return queueConfig
}

package config

import (
	"sync"
	"time"
)

var (
	moderationOnce   sync.Once
	moderationConfig *ModerationConfig

	crawlerOnce   sync.Once
	crawlerConfig *CrawlerConfig

	ollamaOnce   sync.Once
	ollamaConfig *OllamaConfig
)

// ModerationConfig points at the external content-moderation service.
type ModerationConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

func GetModerationConfig() *ModerationConfig {
	moderationOnce.Do(func() {
		loadEnv()

		moderationConfig = &ModerationConfig{
			BaseURL: getEnv("MODERATION_BASE_URL", "http://localhost:8090"),
			APIKey:  getEnv("MODERATION_API_KEY", ""),
			Timeout: time.Duration(getEnvInt("MODERATION_TIMEOUT_SEC", 30)) * time.Second,
		}
	})
	return moderationConfig
}

// CrawlerConfig points at the external crawl service.
type CrawlerConfig struct {
	BaseURL string
	Timeout time.Duration
}

func GetCrawlerConfig() *CrawlerConfig {
	crawlerOnce.Do(func() {
		loadEnv()

		crawlerConfig = &CrawlerConfig{
			BaseURL: getEnv("CRAWLER_BASE_URL", "http://localhost:8091"),
			Timeout: time.Duration(getEnvInt("CRAWLER_TIMEOUT_SEC", 120)) * time.Second,
		}
	})
	return crawlerConfig
}

// OllamaConfig covers both the embedding model and the answer model.
type OllamaConfig struct {
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	Timeout        time.Duration
}

func GetOllamaConfig() *OllamaConfig {
	ollamaOnce.Do(func() {
		loadEnv()

		ollamaConfig = &OllamaConfig{
			BaseURL:        getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
			EmbeddingModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
			ChatModel:      getEnv("OLLAMA_CHAT_MODEL", "llama3"),
			Timeout:        time.Duration(getEnvInt("OLLAMA_TIMEOUT_SEC", 60)) * time.Second,
		}
	})
	return ollamaConfig
}

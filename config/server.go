package config

import (
	"sync"
)

var (
	serverOnce   sync.Once
	serverConfig *ServerConfig
)

type ServerConfig struct {
	Port        string
	LogLevel    string
	StorageType string // "minio" or "memory"
	VectorPath  string // chromem persistence dir, empty for in-memory
}

func GetServerConfig() *ServerConfig {
	serverOnce.Do(func() {
		loadEnv()

		serverConfig = &ServerConfig{
			Port:        getEnv("SERVER_PORT", "8080"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			StorageType: getEnv("STORAGE_TYPE", "minio"),
			VectorPath:  getEnv("VECTOR_PERSIST_PATH", ""),
		}
	})
	return serverConfig
}

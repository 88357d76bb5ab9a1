package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/ingestion-wizard/api/handlers"
	"github.com/feichai0017/ingestion-wizard/api/routes"
	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/internal/service/chat"
	"github.com/feichai0017/ingestion-wizard/internal/service/wizard"
	"github.com/feichai0017/ingestion-wizard/internal/session"
	"github.com/feichai0017/ingestion-wizard/pkg/embedding"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/moderation"
	"github.com/feichai0017/ingestion-wizard/pkg/queue"
	"github.com/feichai0017/ingestion-wizard/pkg/storage"
	"github.com/feichai0017/ingestion-wizard/pkg/vectorstore"
)

func main() {
	serverCfg := config.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/app.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := storage.NewStorage(storage.StorageType(serverCfg.StorageType), log)
	if err != nil {
		log.Fatal("Failed to init storage", logger.Error(err))
	}

	ollamaCfg := config.GetOllamaConfig()
	embedder, err := embedding.NewOllamaEmbedder(ollamaCfg)
	if err != nil {
		log.Fatal("Failed to init embedder", logger.Error(err))
	}
	vectors, err := vectorstore.NewChromemStore(serverCfg.VectorPath, embedder)
	if err != nil {
		log.Fatal("Failed to init vector store", logger.Error(err))
	}

	crawlQueue, err := queue.NewAsynqQueue(config.GetQueueConfig())
	if err != nil {
		log.Fatal("Failed to init crawl queue", logger.Error(err))
	}
	defer crawlQueue.Close()

	sessions := session.NewManager(log)
	moderationClient := moderation.NewClient(config.GetModerationConfig(), log)
	generator := chat.NewOllamaGenerator(ollamaCfg)
	chatService := chat.NewChatService(vectors, generator, log)

	controller := wizard.NewWorkflowController(
		sessions, store, vectors, crawlQueue, moderationClient, chatService, log,
	)

	h := handlers.NewHandlers(controller, log)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.SetupRoutes(r, h)

	srv := &http.Server{
		Addr:    ":" + serverCfg.Port,
		Handler: r,
	}

	go func() {
		log.Info("Server starting", logger.String("port", serverCfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", logger.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", logger.Error(err))
	}
}

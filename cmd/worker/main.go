package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/ingestion-wizard/config"
	"github.com/feichai0017/ingestion-wizard/pkg/crawler"
	"github.com/feichai0017/ingestion-wizard/pkg/logger"
	"github.com/feichai0017/ingestion-wizard/pkg/queue"
	"github.com/feichai0017/ingestion-wizard/pkg/storage"
	"github.com/feichai0017/ingestion-wizard/pkg/worker"
)

func main() {
	serverCfg := config.GetServerConfig()

	log, err := logger.NewLogger(
		logger.WithLevel(serverCfg.LogLevel),
		logger.WithEncoding("json"),
		logger.WithOutputPaths([]string{"stdout", "logs/worker.log"}),
	)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	store, err := storage.NewStorage(storage.StorageType(serverCfg.StorageType), log)
	if err != nil {
		log.Error("Failed to init storage", logger.Error(err))
		os.Exit(1)
	}

	queueCfg := config.GetQueueConfig()
	crawlQueue, err := queue.NewAsynqQueue(queueCfg)
	if err != nil {
		log.Error("Failed to init crawl queue", logger.Error(err))
		os.Exit(1)
	}
	defer crawlQueue.Close()

	crawlerClient := crawler.NewClient(config.GetCrawlerConfig(), log)

	workerCfg := &worker.Config{
		RedisAddr:   queueCfg.RedisAddr,
		RedisDB:     queueCfg.RedisDB,
		Concurrency: queueCfg.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
	}

	crawlWorker, err := worker.NewCrawlWorker(workerCfg, crawlerClient, store, crawlQueue, log)
	if err != nil {
		log.Error("Failed to create crawl worker", logger.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := crawlWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down worker...")
	crawlWorker.Stop()
	log.Info("Worker stopped")
}

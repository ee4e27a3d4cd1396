package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haeter525/quark-engine/internal/api"
	"github.com/haeter525/quark-engine/internal/config"
	"github.com/haeter525/quark-engine/internal/middleware"
	"github.com/haeter525/quark-engine/internal/queue"
	"github.com/haeter525/quark-engine/internal/repository"
	"github.com/haeter525/quark-engine/internal/service"
	"github.com/haeter525/quark-engine/internal/watcher"
)

var (
	Version   = "1.0.0"
	BuildTime = "unknown"
)

func main() {
	fmt.Printf("Quark Extraction Service\n")
	fmt.Printf("Version: %s\n", Version)
	fmt.Printf("Build Time: %s\n\n", BuildTime)

	// 加载配置
	configPath := "./configs/config.yaml"
	if len(os.Args) > 2 && os.Args[1] == "--config" {
		configPath = os.Args[2]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := config.InitLogger(&cfg.Log)
	logger.Infof("Starting extraction service %s", Version)
	logger.Infof("Config loaded from: %s", configPath)

	// 初始化数据库
	db, err := repository.InitDB(&cfg.Database, logger)
	if err != nil {
		logger.Fatalf("Failed to init database: %v", err)
	}
	logger.Info("Database connected successfully")

	reportRepo := repository.NewReportRepository(db, logger)

	// 消息队列按需启用
	var producer *queue.Producer
	if cfg.RabbitMQ.Enabled {
		mq, err := queue.NewRabbitMQ(&cfg.RabbitMQ, logger)
		if err != nil {
			logger.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer mq.Close()
		producer = queue.NewProducer(mq, logger)
	}

	hub := api.NewHub(logger)
	promMetrics := middleware.NewPrometheusMetrics(logger, "quark")

	svc := service.NewAnalysisService(cfg, reportRepo, producer, hub, promMetrics, logger)
	defer svc.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 样本目录监控按需启用
	if cfg.Watcher.Enabled {
		fw, err := watcher.NewFileWatcher(cfg.Watcher.WatchDir, cfg.Watcher.Pattern,
			func(ctx context.Context, filePath string) error {
				_, err := svc.Analyze(ctx, filePath)
				return err
			}, logger)
		if err != nil {
			logger.Fatalf("Failed to create file watcher: %v", err)
		}
		defer fw.Stop()
		fw.Start(ctx)
	}

	router := api.SetupRouter(cfg, logger, svc, hub, promMetrics)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server error: %v", err)
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

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

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/trendagents/trend-pipeline/internal/api"
	"github.com/trendagents/trend-pipeline/internal/apify"
	"github.com/trendagents/trend-pipeline/internal/cache"
	"github.com/trendagents/trend-pipeline/internal/config"
	"github.com/trendagents/trend-pipeline/internal/llm"
	"github.com/trendagents/trend-pipeline/internal/notifications"
	"github.com/trendagents/trend-pipeline/internal/pipeline"
	"github.com/trendagents/trend-pipeline/internal/scheduler"
	"github.com/trendagents/trend-pipeline/internal/sources"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Info("Starting trend pipeline")

	store, err := cache.New(cfg.CacheSize)
	if err != nil {
		logrus.Fatalf("Failed to initialize cache: %v", err)
	}

	llmClient := llm.NewClientFromConfig(cfg)

	deps := pipeline.Dependencies{
		Runner:      apify.NewClientFromConfig(cfg),
		Summarizer:  apify.NewSummarizer(llmClient),
		IdeasCaller: llm.NewStructured(llmClient, llm.PurposeIdeas),
		PostsCaller: llm.NewStructured(llmClient, llm.PurposePosts),
		Registry:    sources.DefaultRegistry(),
		Cache:       store,
	}
	if cfg.NotificationsEnabled() {
		deps.Notifier = notifications.NewService(cfg)
	}
	pipelineService := pipeline.NewService(cfg, deps)

	schedulerService := scheduler.NewService(cfg, pipelineService)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     api.NewHandler(pipelineService).Router(),
		ReadTimeout: 15 * time.Second,
		// Actor runs may wait up to the run timeout plus the polling grace.
		WriteTimeout: time.Duration(cfg.ApifyDefaultTimeout+cfg.ApifyExtraGrace+60) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	logrus.Info("Server exited")
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"memeflow/config"
	"memeflow/internal/archive"
	"memeflow/internal/cache"
	"memeflow/internal/metrics"
	"memeflow/internal/pipeline"
	"memeflow/internal/publish"
	"memeflow/internal/server"
	"memeflow/internal/ws"
	"memeflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Memeflow.Name,
		"version": cfg.Memeflow.Version,
	}).Info("starting memeflow")

	metrics.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	var resultCache *cache.ResultCache
	if cfg.Cache.Redis.Enabled {
		resultCache = cache.NewResultCache(cfg.Cache.Redis)
		defer resultCache.Close()
	} else {
		log.WithComponent("main").Info("redis cache disabled")
	}

	var archiver *archive.Archiver
	if cfg.Archive.S3.Enabled {
		archiver, err = archive.NewArchiver(cfg)
		if err != nil {
			log.WithError(err).Error("failed to create archiver")
			os.Exit(1)
		}
	} else {
		log.WithComponent("main").Info("s3 archive disabled")
	}

	var publisher *publish.Publisher
	if cfg.Publish.Kafka.Enabled {
		publisher = publish.NewPublisher(cfg.Publish.Kafka)
		defer publisher.Close()
	} else {
		log.WithComponent("main").Info("kafka publisher disabled")
	}

	broadcaster := ws.NewBroadcaster()
	dispatcher := server.NewDispatcher(archiver, publisher, broadcaster)

	srv := server.NewServer(cfg, pipeline.New(cfg), resultCache, dispatcher, broadcaster)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverDone := false
	select {
	case sig := <-sigChan:
		log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")
	case err := <-errCh:
		serverDone = true
		if err != nil {
			log.WithError(err).Error("http server failed")
		}
	}

	log.Info("starting graceful shutdown")
	cancel()

	done := make(chan struct{})
	go func() {
		if !serverDone {
			<-errCh
		}
		dispatcher.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("memeflow stopped")
}

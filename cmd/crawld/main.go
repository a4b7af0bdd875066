// Package main wires together the continuous feed-crawling daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/galleryguard/galleryguard/internal/clock/system"
	"github.com/galleryguard/galleryguard/internal/config"
	"github.com/galleryguard/galleryguard/internal/crawl"
	"github.com/galleryguard/galleryguard/internal/fetch"
	"github.com/galleryguard/galleryguard/internal/gallery"
	"github.com/galleryguard/galleryguard/internal/imagehash"
	"github.com/galleryguard/galleryguard/internal/logging"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/scratch"
	mongostore "github.com/galleryguard/galleryguard/internal/store/mongo"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	metricsPort := flag.Int("metrics-port", 9090, "Port for the Prometheus metrics listener")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scratchMgr, err := scratch.New(cfg.Scratch.Root)
	if err != nil {
		logger.Fatal("scratch init failed", zap.Error(err))
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := mongostore.Connect(connectCtx, cfg.Store.URI, cfg.Store.Database, logger.Named("store"))
	if err != nil {
		logger.Fatal("store connect failed", zap.Error(err))
	}
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer closeCancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("store close failed", zap.Error(err))
		}
	}()

	clock := system.New()
	httpClient := &http.Client{Timeout: cfg.FetchTimeout()}
	fetcher := fetch.NewExecutor(httpClient, fetch.Policy{
		MaxAttempts: cfg.Fetch.MaxAttempts,
		Delay:       cfg.FetchDelay(),
	}, logger.Named("fetch"))
	galleryClient := gallery.New(gallery.Config{
		BaseURL:       cfg.Gallery.BaseURL,
		PublicBaseURL: cfg.Gallery.PublicBaseURL,
		ClientID:      cfg.Gallery.ClientID,
		UserAgent:     cfg.Gallery.UserAgent,
	}, httpClient, logger.Named("gallery"))

	loop := crawl.New(
		galleryClient,
		store,
		fetcher,
		scratchMgr,
		imagehash.New(),
		clock,
		crawl.Config{
			Interval:       cfg.CrawlInterval(),
			LowWater:       int64(cfg.Crawl.LowWater),
			PageResetAfter: cfg.PageResetWindow(),
			MaxConcurrent:  cfg.Crawl.MaxConcurrent,
		},
		logger.Named("crawl"),
	)

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", *metricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.Int("port", *metricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()

	logger.Info("crawl loop started")
	loop.Run(ctx)

	logger.Info("shutdown initiated")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

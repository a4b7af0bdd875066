// Package main wires together the HTTP-triggered moderation service.
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

	"github.com/galleryguard/galleryguard/internal/api"
	"github.com/galleryguard/galleryguard/internal/clock/system"
	"github.com/galleryguard/galleryguard/internal/config"
	"github.com/galleryguard/galleryguard/internal/fetch"
	"github.com/galleryguard/galleryguard/internal/filter"
	"github.com/galleryguard/galleryguard/internal/gallery"
	"github.com/galleryguard/galleryguard/internal/imagehash"
	"github.com/galleryguard/galleryguard/internal/logging"
	"github.com/galleryguard/galleryguard/internal/metrics"
	"github.com/galleryguard/galleryguard/internal/ocr"
	"github.com/galleryguard/galleryguard/internal/pipeline"
	"github.com/galleryguard/galleryguard/internal/scratch"
	mongostore "github.com/galleryguard/galleryguard/internal/store/mongo"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
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

	contentFilter, err := filter.New(cfg.Filter.WordlistPath)
	if err != nil {
		logger.Fatal("load forbidden-term list failed", zap.Error(err))
	}
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

	processor := pipeline.NewImageProcessor(
		fetcher,
		scratchMgr,
		ocr.New(ocr.Config{TessdataPath: cfg.OCR.TessdataPath, Language: cfg.OCR.Language}),
		imagehash.New(),
		contentFilter,
		clock,
		logger.Named("image"),
	)
	postPipeline := pipeline.NewPostPipeline(
		processor,
		contentFilter,
		store,
		scratchMgr,
		clock,
		pipeline.Config{
			MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
			UnsafeThreshold: cfg.Pipeline.UnsafeThreshold,
		},
		logger.Named("pipeline"),
	)
	galleryClient := gallery.New(gallery.Config{
		BaseURL:       cfg.Gallery.BaseURL,
		PublicBaseURL: cfg.Gallery.PublicBaseURL,
		ClientID:      cfg.Gallery.ClientID,
		UserAgent:     cfg.Gallery.UserAgent,
	}, httpClient, logger.Named("gallery"))
	service := pipeline.NewService(
		pipeline.NewGate(store, logger.Named("gate")),
		galleryClient,
		postPipeline,
	)

	apiServer := api.NewServer(service, logger.Named("api"))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		var serveErr error
		if cfg.Server.TLSCert != "" {
			serveErr = srv.ListenAndServeTLS(cfg.Server.TLSCert, cfg.Server.TLSKey)
		} else {
			serveErr = srv.ListenAndServe()
		}
		if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

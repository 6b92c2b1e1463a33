package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docsum/app/server"
	"docsum/config"
	"docsum/loader/internal"
	"docsum/loader/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := server.NewDeps(ctx, cfg, logger)
	if err != nil {
		log.Fatal("error building services: ", err)
	}
	defer deps.Close()

	inbox, err := internal.NewInbox(internal.Config{
		SourceDir:  cfg.Loader.SourceDir,
		ArchiveDir: cfg.Loader.ArchiveDir,
		BadDir:     cfg.Loader.BadDir,
		SettleTime: cfg.Loader.SettleTime,
	}, logger)
	if err != nil {
		log.Fatal("error preparing inbox: ", err)
	}

	var summaries service.Summarizer
	if cfg.Loader.AutoSummarize {
		if deps.Summaries.Enabled() {
			summaries = deps.Summaries
		} else {
			logger.Warn("auto summarize requested but no generation model is configured")
		}
	}

	if err := service.New(inbox, deps.Ingest, summaries, logger).Run(ctx); err != nil {
		logger.Error("loader stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Service stopped successfully")
}

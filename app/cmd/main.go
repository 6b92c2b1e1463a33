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
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error loading config: ", err)
	}
	logger := cfg.Log.NewLogger()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deps, err := server.NewDeps(ctx, cfg, logger)
	if err != nil {
		log.Fatal("error building services: ", err)
	}
	defer deps.Close()

	s := server.NewServer(ctx, cfg.Server.Addr, deps, logger)
	go func() {
		if err := s.Run(); err != nil {
			os.Exit(1)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	logger.Info("Received shutdown signal, shutting down server...")

	// running summaries stop at their next checkpoint
	cancel()
	s.Stop()
}

package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/hushmetrics/hushmetrics/internals/config"
	"github.com/hushmetrics/hushmetrics/internals/server"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	srv, err := server.NewServer(logger, cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

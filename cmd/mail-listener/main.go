package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"nexus/internal/config"
	"nexus/internal/extract/groq"
	"nexus/internal/listener"
	"nexus/internal/pipeline"
	"nexus/internal/rasterize"
	"nexus/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	extractor := groq.NewClient(cfg, log)
	source := rasterize.NewRasterizer(cfg, log)
	processor := pipeline.NewProcessor(cfg, db, extractor, source, log)

	svc := listener.NewService(cfg, db, processor, log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

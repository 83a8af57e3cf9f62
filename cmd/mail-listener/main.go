package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"quotedesk/internal/config"
	"quotedesk/internal/extract"
	"quotedesk/internal/listener"
	"quotedesk/internal/match"
	"quotedesk/internal/pipeline"
	"quotedesk/internal/semantic"
	"quotedesk/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := zap.NewProduction()
	must(err)
	defer logger.Sync()

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	var searcher match.SemanticSearcher
	if store, err := semantic.OpenStore(cfg.VectorDir, semantic.NewHTTPEmbedder(cfg), logger); err != nil {
		logger.Warn("vector store unavailable, semantic matching disabled", zap.Error(err))
	} else {
		searcher = store
	}

	svc := pipeline.NewService(db, extract.NewClient(cfg), searcher, cfg, logger)
	s := listener.NewService(db, svc, cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	must(s.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

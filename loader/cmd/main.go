package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intranet/config"
	"intranet/loader/service"
	"intranet/model"
	"intranet/pkg/logger"
	"intranet/store"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Logger.Level)
	if err != nil {
		log.Fatal("error to build logger: ", err)
	}
	defer zl.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewPostgresStore(ctx, cfg.Database.DSN(), zl)
	if err != nil {
		zl.Fatal("error to connect to Postgres database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Init(ctx); err != nil {
		zl.Fatal("error to create tables", zap.Error(err))
	}

	embedder := model.NewRegistry().Embedder(model.ClientKey{
		BaseURL: cfg.Ollama.BaseURL,
		Model:   cfg.Ollama.EmbedModel,
		Timeout: cfg.Ollama.Timeout,
	})

	svc := service.New(cfg.Loader, db, embedder, zl)

	if !cfg.Loader.Watch {
		if err := svc.RunOnce(ctx); err != nil {
			zl.Fatal("ingestion failed", zap.Error(err))
		}
		return
	}

	go func() {
		sigch := make(chan os.Signal, 1)
		signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
		<-sigch
		zl.Info("received shutdown signal")
		cancel()
	}()

	if err := svc.Watch(ctx); err != nil {
		zl.Fatal("watch failed", zap.Error(err))
	}
}

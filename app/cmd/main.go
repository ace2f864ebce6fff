package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"intranet/app/server"
	"intranet/config"
	"intranet/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Logger.Level)
	if err != nil {
		log.Fatal("error to build logger: ", err)
	}
	defer zl.Sync()

	s := server.New(cfg, zl)

	go func() {
		if err := s.Run(context.Background()); err != nil {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	zl.Info("received shutdown signal, shutting down server")
	s.Stop()
}

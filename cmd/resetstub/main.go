package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"flakeguard/internal/platform/logger"
	"flakeguard/internal/resetstub"
)

func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	log := logger.New(logger.Options{Env: "dev", App: "resetstub"})
	defer func() { _ = logger.Close(log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := resetstub.New(*addr, nil, log)
	log.Info("reset stub listening", slog.String("addr", *addr))
	if err := srv.Start(ctx); err != nil {
		log.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"ocr-relay/api/internal/app"
	"ocr-relay/api/internal/config"
	"ocr-relay/api/internal/handle"
	"ocr-relay/api/internal/httpserver"
	"ocr-relay/api/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("ocr-relay.exit", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	accessKey := cfg.AccessKey
	if cfg.AuthDisabled {
		log.Warn("auth.disabled")
		accessKey = ""
	}
	h := handle.New(p.Service, cfg.MaxUploadBytes, log.Named("http"))
	router := httpserver.NewRouter(h, httpserver.Options{
		AccessKey:      accessKey,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Log:            log.Named("http"),
	})
	return httpserver.Serve(ctx, "0.0.0.0:"+cfg.Port, router, log)
}

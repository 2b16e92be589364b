package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/instance"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "storefront"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "storefront",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"port":     cfg.App.Port,
		"storage":  cfg.Storage.Kind(),
		"instance": instance.ID(),
	})

	app, err := NewApp(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap storefront", err)
		os.Exit(1)
	}

	logg.Info(ctx, "starting storefront agent")
	runErr := app.Run(ctx)
	if err := app.Close(); err != nil {
		logg.Error(ctx, "error releasing resources", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(ctx, "storefront stopped unexpectedly", runErr)
		os.Exit(1)
	}

	logg.Info(ctx, "storefront shutting down gracefully")
}

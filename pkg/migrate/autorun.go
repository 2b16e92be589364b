package migrate

import (
	"context"
	"fmt"

	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/db"
	"github.com/MwailaCoding/storefront/pkg/logger"
)

// MaybeRun applies the embedded migrations when auto-migrate is enabled.
func MaybeRun(ctx context.Context, cfg config.DBConfig, logg *logger.Logger, client *db.Client) error {
	if !cfg.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"dialect": client.Dialect(), "dir": Dir})
	logg.Info(ctx, "running goose migrations")

	if err := Up(ctx, sqlDB, client.Dialect()); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}

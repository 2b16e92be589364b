package kv

import (
	"context"
	"fmt"
	"io"

	"github.com/MwailaCoding/storefront/pkg/config"
	"github.com/MwailaCoding/storefront/pkg/db"
	"github.com/MwailaCoding/storefront/pkg/logger"
	"github.com/MwailaCoding/storefront/pkg/migrate"
	pkgredis "github.com/MwailaCoding/storefront/pkg/redis"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the Store selected by cfg.Storage. The returned closer releases
// the backing connection and is never nil.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, io.Closer, error) {
	switch cfg.Storage.Kind() {
	case config.StorageMemory:
		logg.Warn(ctx, "using in-memory storage; cart and session will not survive restarts")
		return NewMemoryStore(), nopCloser{}, nil

	case config.StorageRedis:
		client, err := pkgredis.New(ctx, cfg.Redis, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting redis: %w", err)
		}
		store, err := NewRedisStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil

	case config.StorageSQL:
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting database: %w", err)
		}
		if err := migrate.MaybeRun(ctx, cfg.DB, logg, client); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		store, err := NewSQLStore(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}

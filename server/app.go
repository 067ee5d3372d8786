package server

import (
	"context"
	"fmt"

	"Bt1QMedia/cache"
	"Bt1QMedia/config"
	"Bt1QMedia/core/events"
	"Bt1QMedia/db"
	"Bt1QMedia/logger"
	"Bt1QMedia/storage"
)

// Start opens every backing service from cfg and serves HTTP until ctx is canceled.
func Start(ctx context.Context, cfg *config.Config) error {
	store, err := db.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	if cfg.SeedSampleData {
		if _, err := db.Seed(ctx, store, db.AdminAccount{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		}); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
	}

	objects, err := storage.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.StorageBackend, err)
	}
	logger.Info("object storage ready", logger.String("backend", objects.Name()))

	deps := Deps{Store: store, Objects: objects}

	if cfg.CacheEnabled {
		client, err := cache.Connect(ctx, cfg)
		if err != nil {
			// 缓存不可用时直接读数据库
			logger.Warn("catalog cache disabled", logger.ErrorField(err))
		} else {
			defer client.Close()
			deps.Cache = cache.NewCatalogCache(client, cfg.CacheTTL)
			logger.Info("catalog cache connected", logger.String("addr", cfg.RedisAddr()))
		}
	}

	hub := events.NewHub()
	go hub.Run(ctx)
	defer hub.Stop()
	deps.Hub = hub

	return New(cfg, deps).ListenAndServe(ctx)
}

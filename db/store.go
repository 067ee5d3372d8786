package db

import (
	"fmt"

	"Bt1QMedia/config"
	"Bt1QMedia/logger"
	"Bt1QMedia/repository"
)

// NewStore opens the persistence backing selected by STORE_BACKEND.
// The sql backing is migrated on open.
func NewStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		return repository.NewMemoryStore(), nil

	case config.StoreDocument:
		store, err := repository.OpenDocumentStore(cfg.DocumentPath, cfg.DocumentWatch)
		if err != nil {
			return nil, err
		}
		logger.Info("document store opened",
			logger.String("path", cfg.DocumentPath),
			logger.Bool("watch", cfg.DocumentWatch))
		return store, nil

	case config.StoreSQL, "":
		gdb, err := Open(cfg)
		if err != nil {
			return nil, err
		}
		if err := Migrate(gdb); err != nil {
			if sqlDB, dbErr := gdb.DB(); dbErr == nil {
				sqlDB.Close()
			}
			return nil, err
		}
		return repository.NewGormStore(gdb), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"cdpwatch/internal/config"
	"cdpwatch/internal/storage/postgres"
	"cdpwatch/internal/storage/sqlite"
	"cdpwatch/internal/watchlist"
)

// openStore opens the configured watchlist backend. The returned func
// releases it.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (watchlist.Store, func(), error) {
	switch cfg.Store {
	case config.StorePostgres:
		store, err := postgres.NewStore(ctx, cfg.PgDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres store: %w", err)
		}
		logger.Info("watchlist store", zap.String("backend", cfg.Store))
		return store, store.Close, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		logger.Info("watchlist store", zap.String("backend", cfg.Store), zap.String("path", cfg.SQLitePath))
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close sqlite store", zap.Error(err))
			}
		}, nil
	default:
		store, err := watchlist.OpenFileStore(cfg.StorePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open file store: %w", err)
		}
		logger.Info("watchlist store", zap.String("backend", cfg.Store), zap.String("path", cfg.StorePath), zap.Int("entries", store.Len()))
		return store, func() {}, nil
	}
}

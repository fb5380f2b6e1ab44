package main

import (
	"context"
	"log/slog"

	"recipelens/pkg/config"
	"recipelens/pkg/database"
)

// migrateAndSeed backs the "migrate" argument: it runs AutoMigrate and seeds
// regardless of the auto_migrate setting.
func migrateAndSeed(ctx context.Context, cfg config.DBConfig, log *slog.Logger) error {
	cfg.AutoMigrate = true
	cfg.Seed = true
	store, err := database.Setup(ctx, cfg, log)
	if err != nil {
		return err
	}
	return database.Close(store)
}

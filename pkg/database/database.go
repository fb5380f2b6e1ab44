// Package database opens the postgres recipe store and keeps its schema and
// sample data in place.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"recipelens/models"
	"recipelens/pkg/config"
	"recipelens/pkg/logging"
	"recipelens/pkg/recipe"
)

// Open connects gorm to postgres and applies the pool limits from cfg.
func Open(cfg config.DBConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is not set")
	}
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql handle: %w", err)
	}
	if cfg.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// AutoMigrate creates or updates the recipe tables. Models are migrated one
// at a time so a permission problem on one table is logged and the rest
// still go through.
func AutoMigrate(db *gorm.DB, log *slog.Logger) error {
	log = logging.OrDefault(log)
	var failed int
	for _, m := range []struct {
		table string
		model any
	}{
		{"recipes", &models.Recipe{}},
		{"ingredients", &models.RecipeIngredient{}},
		{"instructions", &models.Instruction{}},
		{"nutrition", &models.Nutrition{}},
	} {
		if err := db.AutoMigrate(m.model); err != nil {
			log.Warn("migration warning", "table", m.table, "error", err)
			failed++
		}
	}
	if failed == 4 {
		return fmt.Errorf("auto migrate: no table could be migrated")
	}
	return nil
}

// SeedIfEmpty inserts the built-in sample recipes when the store holds none.
// It returns how many recipes were inserted.
func SeedIfEmpty(ctx context.Context, store *recipe.GormStore, log *slog.Logger) (int, error) {
	n, err := store.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}
	samples, err := recipe.SampleRecipes()
	if err != nil {
		return 0, err
	}
	if err := store.Insert(ctx, samples); err != nil {
		return 0, err
	}
	logging.OrDefault(log).Info("seeded sample recipes", "count", len(samples))
	return len(samples), nil
}

// Setup opens the database, migrates it when cfg asks for it and seeds the
// sample corpus into an empty store.
func Setup(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (*recipe.GormStore, error) {
	log = logging.OrDefault(log)
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoMigrate {
		if err := AutoMigrate(db, log); err != nil {
			return nil, err
		}
	}
	store := recipe.NewGormStore(db)
	if cfg.Seed {
		if _, err := SeedIfEmpty(ctx, store, log); err != nil {
			log.Warn("seeding sample recipes failed", "error", err)
		}
	}
	return store, nil
}

// Close releases the connection pool behind store.
func Close(store *recipe.GormStore) error {
	sqlDB, err := store.DB().DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenStore returns the postgres store, or an in-memory store holding the
// sample recipes when no DSN is configured. The returned func releases the
// connection pool.
func OpenStore(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (recipe.Store, func() error, error) {
	log = logging.OrDefault(log)
	if cfg.DSN == "" {
		samples, err := recipe.SampleRecipes()
		if err != nil {
			return nil, nil, err
		}
		log.Warn("DB_DSN is not set, serving the built-in sample recipes from memory", "recipes", len(samples))
		return recipe.NewMemoryStore(samples), func() error { return nil }, nil
	}
	store, err := Setup(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return store, func() error { return Close(store) }, nil
}

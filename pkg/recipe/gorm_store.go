package recipe

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"recipelens/models"
)

// DefaultBatchSize is how many recipes GormStore loads per query.
const DefaultBatchSize = 200

// GormStore reads recipes from postgres through gorm, preloading
// ingredients, instructions and nutrition one batch at a time.
type GormStore struct {
	db    *gorm.DB
	batch int
}

// NewGormStore wraps an open gorm handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db, batch: DefaultBatchSize}
}

// DB exposes the underlying handle for migrations and seeding.
func (s *GormStore) DB() *gorm.DB { return s.db }

// Scan implements Store.
func (s *GormStore) Scan(ctx context.Context, fn func(*models.Recipe) error) error {
	var (
		batch []models.Recipe
		fnErr error
	)
	res := s.db.WithContext(ctx).
		Preload("Ingredients", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC, id ASC") }).
		Preload("Instructions", func(db *gorm.DB) *gorm.DB { return db.Order("step_number ASC, id ASC") }).
		Preload("Nutrition").
		FindInBatches(&batch, s.batch, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := fn(&batch[i]); err != nil {
					fnErr = err
					return err
				}
			}
			return nil
		})
	if fnErr != nil {
		return fnErr
	}
	if res.Error != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Error)
	}
	return nil
}

// Insert creates recipes with their children in one transaction.
func (s *GormStore) Insert(ctx context.Context, recipes []models.Recipe) error {
	if len(recipes) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range recipes {
			if err := tx.Create(&recipes[i]).Error; err != nil {
				return fmt.Errorf("insert %q: %w", recipes[i].Title, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Count returns the number of stored recipes.
func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Recipe{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// MissingTables lists the recipe tables that do not exist yet.
func (s *GormStore) MissingTables(ctx context.Context) ([]string, error) {
	m := s.db.WithContext(ctx).Migrator()
	var missing []string
	for _, t := range []any{&models.Recipe{}, &models.RecipeIngredient{}, &models.Instruction{}, &models.Nutrition{}} {
		if !m.HasTable(t) {
			stmt := &gorm.Statement{DB: s.db}
			if err := stmt.Parse(t); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			missing = append(missing, stmt.Schema.Table)
		}
	}
	return missing, nil
}

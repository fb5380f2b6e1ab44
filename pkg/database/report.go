package database

import (
	"context"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

// Report is the operator view of the recipe tables.
type Report struct {
	Tables   []TableCount   `json:"tables"`
	Cuisines []CuisineCount `json:"cuisines"`
	Sources  []SourceCount  `json:"sources"`
	Nulls    NutritionNulls `json:"nutrition_nulls"`
}

// TableCount is the row count of one table.
type TableCount struct {
	Table string `db:"table_name" json:"table"`
	Rows  int64  `db:"row_count" json:"rows"`
}

// CuisineCount is the number of recipes per cuisine.
type CuisineCount struct {
	Cuisine string `db:"cuisine_type" json:"cuisine"`
	Recipes int64  `db:"recipes" json:"recipes"`
}

// SourceCount is the number of recipes per import source.
type SourceCount struct {
	Source  string `db:"source" json:"source"`
	Recipes int64  `db:"recipes" json:"recipes"`
}

// NutritionNulls counts recipes whose nutrition filters cannot match.
type NutritionNulls struct {
	WithoutNutrition int64 `db:"without_nutrition" json:"without_nutrition"`
	WithoutCalories  int64 `db:"without_calories" json:"without_calories"`
	WithoutSodium    int64 `db:"without_sodium" json:"without_sodium"`
}

// OpenSQL opens a plain sqlx pool over the pgx driver for reporting queries.
func OpenSQL(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	db.SetMaxOpenConns(2)
	return db, nil
}

const tableCountsQuery = `
SELECT 'recipes' AS table_name, COUNT(*) AS row_count FROM recipes
UNION ALL SELECT 'ingredients', COUNT(*) FROM ingredients
UNION ALL SELECT 'instructions', COUNT(*) FROM instructions
UNION ALL SELECT 'nutrition', COUNT(*) FROM nutrition`

const nutritionNullsQuery = `
SELECT
	COUNT(*) FILTER (WHERE n.id IS NULL) AS without_nutrition,
	COUNT(*) FILTER (WHERE n.calories IS NULL) AS without_calories,
	COUNT(*) FILTER (WHERE n.sodium IS NULL) AS without_sodium
FROM recipes r
LEFT JOIN nutrition n ON n.recipe_id = r.id`

// BuildReport runs the reporting queries.
func BuildReport(ctx context.Context, db *sqlx.DB) (*Report, error) {
	rep := &Report{}
	if err := db.SelectContext(ctx, &rep.Tables, tableCountsQuery); err != nil {
		return nil, fmt.Errorf("table counts: %w", err)
	}
	if err := db.SelectContext(ctx, &rep.Cuisines,
		`SELECT cuisine_type, COUNT(*) AS recipes FROM recipes GROUP BY cuisine_type ORDER BY recipes DESC, cuisine_type`); err != nil {
		return nil, fmt.Errorf("cuisine counts: %w", err)
	}
	if err := db.SelectContext(ctx, &rep.Sources,
		`SELECT source, COUNT(*) AS recipes FROM recipes GROUP BY source ORDER BY recipes DESC, source`); err != nil {
		return nil, fmt.Errorf("source counts: %w", err)
	}
	if err := db.GetContext(ctx, &rep.Nulls, nutritionNullsQuery); err != nil {
		return nil, fmt.Errorf("nutrition nulls: %w", err)
	}
	return rep, nil
}

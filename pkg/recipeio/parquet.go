package recipeio

import (
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"

	"recipelens/models"
)

// parquetRecipe is the row layout of a recipe parquet file. Optional values
// are nullable columns; ingredients and steps are repeated groups.
type parquetRecipe struct {
	Title              string              `parquet:"title"`
	Description        string              `parquet:"description"`
	CuisineType        string              `parquet:"cuisine_type"`
	DifficultyLevel    string              `parquet:"difficulty_level"`
	PrepTime           *int64              `parquet:"prep_time,optional"`
	CookTime           *int64              `parquet:"cook_time,optional"`
	TotalTime          *int64              `parquet:"total_time,optional"`
	Servings           *int64              `parquet:"servings,optional"`
	DietaryPreferences []string            `parquet:"dietary_preferences"`
	Source             string              `parquet:"source"`
	SourceID           string              `parquet:"source_id"`
	ImageURL           string              `parquet:"image_url"`
	Ingredients        []parquetIngredient `parquet:"ingredients"`
	Instructions       []parquetStep       `parquet:"instructions"`
	Calories           *int64              `parquet:"calories,optional"`
	Protein            *float64            `parquet:"protein,optional"`
	Carbohydrates      *float64            `parquet:"carbohydrates,optional"`
	Fat                *float64            `parquet:"fat,optional"`
	Fiber              *float64            `parquet:"fiber,optional"`
	Sugar              *float64            `parquet:"sugar,optional"`
	Sodium             *float64            `parquet:"sodium,optional"`
}

type parquetIngredient struct {
	Position int64    `parquet:"position"`
	Name     string   `parquet:"name"`
	Quantity *float64 `parquet:"quantity,optional"`
	Unit     string   `parquet:"unit"`
	Notes    string   `parquet:"notes"`
}

type parquetStep struct {
	StepNumber  int64  `parquet:"step_number"`
	Description string `parquet:"description"`
}

const parquetBatchSize = 256

// WriteParquet writes one row per recipe.
func WriteParquet(w io.Writer, recipes []models.Recipe) error {
	pw := parquet.NewGenericWriter[parquetRecipe](w)
	rows := make([]parquetRecipe, 0, parquetBatchSize)
	for i := range recipes {
		rows = append(rows, toParquet(&recipes[i]))
		if len(rows) == parquetBatchSize {
			if _, err := pw.Write(rows); err != nil {
				return fmt.Errorf("write rows: %w", err)
			}
			rows = rows[:0]
		}
	}
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return fmt.Errorf("write rows: %w", err)
		}
	}
	return pw.Close()
}

// ReadParquet reads a file written by WriteParquet.
func ReadParquet(r io.ReaderAt, size int64) ([]models.Recipe, error) {
	pf, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	reader := parquet.NewGenericReader[parquetRecipe](pf)
	defer reader.Close()

	var out []models.Recipe
	rows := make([]parquetRecipe, parquetBatchSize)
	for {
		n, err := reader.Read(rows)
		for i := 0; i < n; i++ {
			if rows[i].Title == "" {
				continue
			}
			out = append(out, fromParquet(&rows[i]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read rows: %w", err)
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}

func toParquet(r *models.Recipe) parquetRecipe {
	row := parquetRecipe{
		Title:              r.Title,
		Description:        r.Description,
		CuisineType:        r.CuisineType,
		DifficultyLevel:    r.DifficultyLevel,
		PrepTime:           i64(r.PrepTime),
		CookTime:           i64(r.CookTime),
		TotalTime:          i64(r.TotalTime),
		Servings:           i64(r.Servings),
		DietaryPreferences: r.DietaryPreferences,
		Source:             r.Source,
		SourceID:           r.SourceID,
		ImageURL:           r.ImageURL,
	}
	for _, ing := range r.Ingredients {
		row.Ingredients = append(row.Ingredients, parquetIngredient{
			Position: int64(ing.Position),
			Name:     ing.Name,
			Quantity: ing.Quantity,
			Unit:     ing.Unit,
			Notes:    ing.Notes,
		})
	}
	for _, st := range r.Instructions {
		row.Instructions = append(row.Instructions, parquetStep{StepNumber: int64(st.StepNumber), Description: st.Description})
	}
	if n := r.Nutrition; n != nil {
		row.Calories = i64(n.Calories)
		row.Protein = n.Protein
		row.Carbohydrates = n.Carbohydrates
		row.Fat = n.Fat
		row.Fiber = n.Fiber
		row.Sugar = n.Sugar
		row.Sodium = n.Sodium
	}
	return row
}

func fromParquet(row *parquetRecipe) models.Recipe {
	r := models.Recipe{
		Title:           row.Title,
		Description:     row.Description,
		CuisineType:     row.CuisineType,
		DifficultyLevel: row.DifficultyLevel,
		PrepTime:        toInt(row.PrepTime),
		CookTime:        toInt(row.CookTime),
		TotalTime:       toInt(row.TotalTime),
		Servings:        toInt(row.Servings),
		Source:          row.Source,
		SourceID:        row.SourceID,
		ImageURL:        row.ImageURL,
	}
	if len(row.DietaryPreferences) > 0 {
		r.DietaryPreferences = append([]string(nil), row.DietaryPreferences...)
	}
	for _, ing := range row.Ingredients {
		r.Ingredients = append(r.Ingredients, models.RecipeIngredient{
			Position: int(ing.Position),
			Name:     ing.Name,
			Quantity: copyFloat(ing.Quantity),
			Unit:     ing.Unit,
			Notes:    ing.Notes,
		})
	}
	for _, st := range row.Instructions {
		r.Instructions = append(r.Instructions, models.Instruction{StepNumber: int(st.StepNumber), Description: st.Description})
	}
	n := &models.Nutrition{
		Calories:      toInt(row.Calories),
		Protein:       copyFloat(row.Protein),
		Carbohydrates: copyFloat(row.Carbohydrates),
		Fat:           copyFloat(row.Fat),
		Fiber:         copyFloat(row.Fiber),
		Sugar:         copyFloat(row.Sugar),
		Sodium:        copyFloat(row.Sodium),
	}
	if !allNil(n) {
		r.Nutrition = n
	}
	return r
}

func i64(v *int) *int64 {
	if v == nil {
		return nil
	}
	x := int64(*v)
	return &x
}

func toInt(v *int64) *int {
	if v == nil {
		return nil
	}
	x := int(*v)
	return &x
}

// copyFloat detaches a value from the reader's reused row buffer.
func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	x := *v
	return &x
}

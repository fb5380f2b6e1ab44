package recipeio

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"recipelens/models"
)

// Sheet names of the workbook layout. Recipes holds one row per recipe;
// the other two sheets point back to it through the ref column.
const (
	SheetRecipes      = "Recipes"
	SheetIngredients  = "Ingredients"
	SheetInstructions = "Instructions"
)

var recipeColumns = []string{
	"ref", "title", "description", "cuisine_type", "difficulty_level",
	"prep_time", "cook_time", "total_time", "servings", "dietary_preferences",
	"source", "source_id", "image_url",
	"calories", "protein", "carbohydrates", "fat", "fiber", "sugar", "sodium",
}

var ingredientColumns = []string{"ref", "position", "name", "quantity", "unit", "notes"}

var instructionColumns = []string{"ref", "step_number", "description"}

// WriteXLSX writes recipes as a three sheet workbook.
func WriteXLSX(w io.Writer, recipes []models.Recipe) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), SheetRecipes); err != nil {
		return err
	}
	for _, s := range []string{SheetIngredients, SheetInstructions} {
		if _, err := f.NewSheet(s); err != nil {
			return err
		}
	}
	if err := writeRow(f, SheetRecipes, 1, toAny(recipeColumns)); err != nil {
		return err
	}
	if err := writeRow(f, SheetIngredients, 1, toAny(ingredientColumns)); err != nil {
		return err
	}
	if err := writeRow(f, SheetInstructions, 1, toAny(instructionColumns)); err != nil {
		return err
	}

	ingRow, stepRow := 2, 2
	for i, r := range recipes {
		ref := i + 1
		n := r.Nutrition
		if n == nil {
			n = &models.Nutrition{}
		}
		row := []any{
			ref, r.Title, r.Description, r.CuisineType, r.DifficultyLevel,
			cell(r.PrepTime), cell(r.CookTime), cell(r.TotalTime), cell(r.Servings),
			strings.Join(r.DietaryPreferences, ", "),
			r.Source, r.SourceID, r.ImageURL,
			cell(n.Calories), cell(n.Protein), cell(n.Carbohydrates), cell(n.Fat),
			cell(n.Fiber), cell(n.Sugar), cell(n.Sodium),
		}
		if err := writeRow(f, SheetRecipes, i+2, row); err != nil {
			return err
		}
		for _, ing := range r.Ingredients {
			if err := writeRow(f, SheetIngredients, ingRow, []any{ref, ing.Position, ing.Name, cell(ing.Quantity), ing.Unit, ing.Notes}); err != nil {
				return err
			}
			ingRow++
		}
		for _, st := range r.Instructions {
			if err := writeRow(f, SheetInstructions, stepRow, []any{ref, st.StepNumber, st.Description}); err != nil {
				return err
			}
			stepRow++
		}
	}
	_, err := f.WriteTo(w)
	return err
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	addr, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, addr, &values)
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// cell turns an optional number into a cell value; unknown is an empty cell.
func cell[T int | float64](v *T) any {
	if v == nil {
		return ""
	}
	return *v
}

// ReadXLSX reads a workbook in the WriteXLSX layout. Columns are matched by
// header name, so extra or reordered columns are fine. The Ingredients and
// Instructions sheets are optional.
func ReadXLSX(r io.Reader) ([]models.Recipe, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open Excel file: %w", err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetRecipes)
	if err != nil {
		return nil, fmt.Errorf("sheet %s: %w", SheetRecipes, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	h := headerIndex(rows[0])
	if _, ok := h["title"]; !ok {
		return nil, fmt.Errorf("sheet %s has no title column", SheetRecipes)
	}

	var recipes []models.Recipe
	byRef := map[string]int{}
	for i, row := range rows[1:] {
		line := i + 2
		get := func(col string) string { return h.get(row, col) }
		title := get("title")
		if title == "" {
			continue
		}
		rec := models.Recipe{
			Title:           title,
			Description:     get("description"),
			CuisineType:     get("cuisine_type"),
			DifficultyLevel: get("difficulty_level"),
			Source:          get("source"),
			SourceID:        get("source_id"),
			ImageURL:        get("image_url"),
		}
		for _, p := range strings.Split(get("dietary_preferences"), ",") {
			if p = strings.TrimSpace(p); p != "" {
				rec.DietaryPreferences = append(rec.DietaryPreferences, p)
			}
		}
		var perr error
		intCol := func(col string) *int {
			v, err := parseInt(get(col))
			if err != nil && perr == nil {
				perr = fmt.Errorf("%s row %d column %s: %w", SheetRecipes, line, col, err)
			}
			return v
		}
		floatCol := func(col string) *float64 {
			v, err := parseFloat(get(col))
			if err != nil && perr == nil {
				perr = fmt.Errorf("%s row %d column %s: %w", SheetRecipes, line, col, err)
			}
			return v
		}
		rec.PrepTime = intCol("prep_time")
		rec.CookTime = intCol("cook_time")
		rec.TotalTime = intCol("total_time")
		rec.Servings = intCol("servings")
		n := &models.Nutrition{
			Calories:      intCol("calories"),
			Protein:       floatCol("protein"),
			Carbohydrates: floatCol("carbohydrates"),
			Fat:           floatCol("fat"),
			Fiber:         floatCol("fiber"),
			Sugar:         floatCol("sugar"),
			Sodium:        floatCol("sodium"),
		}
		if perr != nil {
			return nil, perr
		}
		if !allNil(n) {
			rec.Nutrition = n
		}
		ref := get("ref")
		if ref == "" {
			ref = strconv.Itoa(line - 1)
		}
		byRef[ref] = len(recipes)
		recipes = append(recipes, rec)
	}

	if err := readIngredients(f, recipes, byRef); err != nil {
		return nil, err
	}
	if err := readInstructions(f, recipes, byRef); err != nil {
		return nil, err
	}
	return recipes, nil
}

func readIngredients(f *excelize.File, recipes []models.Recipe, byRef map[string]int) error {
	rows, err := f.GetRows(SheetIngredients)
	if err != nil || len(rows) == 0 {
		return nil
	}
	h := headerIndex(rows[0])
	for i, row := range rows[1:] {
		idx, ok := byRef[h.get(row, "ref")]
		name := h.get(row, "name")
		if !ok || name == "" {
			continue
		}
		qty, err := parseFloat(h.get(row, "quantity"))
		if err != nil {
			return fmt.Errorf("%s row %d column quantity: %w", SheetIngredients, i+2, err)
		}
		pos := len(recipes[idx].Ingredients)
		if p, err := parseInt(h.get(row, "position")); err == nil && p != nil {
			pos = *p
		}
		recipes[idx].Ingredients = append(recipes[idx].Ingredients, models.RecipeIngredient{
			Position: pos,
			Name:     name,
			Quantity: qty,
			Unit:     h.get(row, "unit"),
			Notes:    h.get(row, "notes"),
		})
	}
	return nil
}

func readInstructions(f *excelize.File, recipes []models.Recipe, byRef map[string]int) error {
	rows, err := f.GetRows(SheetInstructions)
	if err != nil || len(rows) == 0 {
		return nil
	}
	h := headerIndex(rows[0])
	for _, row := range rows[1:] {
		idx, ok := byRef[h.get(row, "ref")]
		desc := h.get(row, "description")
		if !ok || desc == "" {
			continue
		}
		step := len(recipes[idx].Instructions) + 1
		if p, err := parseInt(h.get(row, "step_number")); err == nil && p != nil {
			step = *p
		}
		recipes[idx].Instructions = append(recipes[idx].Instructions, models.Instruction{StepNumber: step, Description: desc})
	}
	return nil
}

type header map[string]int

func headerIndex(row []string) header {
	h := header{}
	for i, name := range row {
		h[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return h
}

func (h header) get(row []string, col string) string {
	i, ok := h[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseInt(s string) (*int, error) {
	if s == "" {
		return nil, nil
	}
	if v, err := strconv.Atoi(s); err == nil {
		return &v, nil
	}
	// spreadsheets often store whole numbers as 25.0
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	v := int(f)
	return &v, nil
}

func parseFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("not a number: %q", s)
	}
	return &v, nil
}

// Package recipeio moves recipe corpora in and out of spreadsheet (xlsx),
// columnar (parquet) and YAML files.
package recipeio

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"recipelens/models"
	"recipelens/pkg/recipe"
)

// Format is a supported file format.
type Format string

const (
	FormatXLSX    Format = "xlsx"
	FormatParquet Format = "parquet"
	FormatYAML    Format = "yaml"
)

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return FormatXLSX, nil
	case ".parquet":
		return FormatParquet, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported recipe file %q (want .xlsx, .parquet or .yaml)", filepath.Base(path))
}

// ReadFile loads recipes from path. Ids are not carried over; TotalTime is
// filled from prep and cook time when missing.
func ReadFile(path string) ([]models.Recipe, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []models.Recipe
	switch format {
	case FormatXLSX:
		out, err = ReadXLSX(f)
	case FormatParquet:
		info, serr := f.Stat()
		if serr != nil {
			return nil, fmt.Errorf("failed to stat file: %w", serr)
		}
		out, err = ReadParquet(f, info.Size())
	case FormatYAML:
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return nil, rerr
		}
		out, err = recipe.ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	for i := range out {
		out[i].ID = 0
		out[i].FillTotalTime()
	}
	return out, nil
}

// WriteFile exports recipes to path in the format its extension names.
func WriteFile(path string, recipes []models.Recipe) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == FormatYAML {
		return fmt.Errorf("yaml export is not supported, use xlsx or parquet")
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	switch format {
	case FormatXLSX:
		err = WriteXLSX(f, recipes)
	case FormatParquet:
		err = WriteParquet(f, recipes)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

// allNil reports whether every nutrition value is unknown.
func allNil(n *models.Nutrition) bool {
	return n.Calories == nil && n.Protein == nil && n.Carbohydrates == nil &&
		n.Fat == nil && n.Fiber == nil && n.Sugar == nil && n.Sodium == nil
}

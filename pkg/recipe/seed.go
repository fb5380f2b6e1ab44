package recipe

import (
	_ "embed"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"recipelens/models"
)

//go:embed seed.yaml
var seedData []byte

// seedEpoch anchors CreatedAt of the sample corpus so "newest first" is
// stable across runs.
var seedEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type yamlIngredient struct {
	Name     string   `yaml:"name"`
	Quantity *float64 `yaml:"quantity"`
	Unit     string   `yaml:"unit"`
	Notes    string   `yaml:"notes"`
}

type yamlNutrition struct {
	Calories      *int     `yaml:"calories"`
	Protein       *float64 `yaml:"protein"`
	Carbohydrates *float64 `yaml:"carbohydrates"`
	Fat           *float64 `yaml:"fat"`
	Fiber         *float64 `yaml:"fiber"`
	Sugar         *float64 `yaml:"sugar"`
	Sodium        *float64 `yaml:"sodium"`
}

type yamlRecipe struct {
	Title       string           `yaml:"title"`
	Description string           `yaml:"description"`
	Cuisine     string           `yaml:"cuisine"`
	Difficulty  string           `yaml:"difficulty"`
	PrepTime    *int             `yaml:"prep_time"`
	CookTime    *int             `yaml:"cook_time"`
	TotalTime   *int             `yaml:"total_time"`
	Servings    *int             `yaml:"servings"`
	Diet        []string         `yaml:"diet"`
	Source      string           `yaml:"source"`
	ImageURL    string           `yaml:"image_url"`
	Ingredients []yamlIngredient `yaml:"ingredients"`
	Steps       []string         `yaml:"steps"`
	Nutrition   *yamlNutrition   `yaml:"nutrition"`
}

// SampleRecipes returns the built-in sample corpus.
func SampleRecipes() ([]models.Recipe, error) {
	recipes, err := ParseYAML(seedData)
	if err != nil {
		return nil, err
	}
	for i := range recipes {
		recipes[i].CreatedAt = seedEpoch.Add(time.Duration(i) * time.Hour)
		if recipes[i].Source == "" {
			recipes[i].Source = "sample"
		}
	}
	return recipes, nil
}

// ParseYAML decodes a list of recipes in the seed file format.
func ParseYAML(data []byte) ([]models.Recipe, error) {
	var in []yamlRecipe
	if err := yaml.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse recipes: %w", err)
	}
	out := make([]models.Recipe, 0, len(in))
	for i, y := range in {
		if strings.TrimSpace(y.Title) == "" {
			return nil, fmt.Errorf("recipe %d has no title", i+1)
		}
		r := models.Recipe{
			Title:              y.Title,
			Description:        y.Description,
			CuisineType:        y.Cuisine,
			DifficultyLevel:    y.Difficulty,
			PrepTime:           y.PrepTime,
			CookTime:           y.CookTime,
			TotalTime:          y.TotalTime,
			Servings:           y.Servings,
			DietaryPreferences: y.Diet,
			Source:             y.Source,
			ImageURL:           y.ImageURL,
		}
		for j, ing := range y.Ingredients {
			r.Ingredients = append(r.Ingredients, models.RecipeIngredient{
				Position: j,
				Name:     ing.Name,
				Quantity: ing.Quantity,
				Unit:     ing.Unit,
				Notes:    ing.Notes,
			})
		}
		for j, step := range y.Steps {
			r.Instructions = append(r.Instructions, models.Instruction{StepNumber: j + 1, Description: step})
		}
		if n := y.Nutrition; n != nil {
			r.Nutrition = &models.Nutrition{
				Calories:      n.Calories,
				Protein:       n.Protein,
				Carbohydrates: n.Carbohydrates,
				Fat:           n.Fat,
				Fiber:         n.Fiber,
				Sugar:         n.Sugar,
				Sodium:        n.Sodium,
			}
		}
		r.FillTotalTime()
		out = append(out, r)
	}
	return out, nil
}

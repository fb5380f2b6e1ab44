package recipe

import (
	"context"
	"errors"
	"sort"
	"strings"

	"recipelens/models"
)

// Range is the observed minimum and maximum of an optional value.
type Range struct {
	Min *int `json:"min"`
	Max *int `json:"max"`
}

func (r *Range) observe(v *int) {
	if v == nil {
		return
	}
	if r.Min == nil || *v < *r.Min {
		x := *v
		r.Min = &x
	}
	if r.Max == nil || *v > *r.Max {
		x := *v
		r.Max = &x
	}
}

// Options lists the values a client can filter on.
type Options struct {
	CuisineTypes       []string         `json:"cuisine_types"`
	DifficultyLevels   []string         `json:"difficulty_levels"`
	DietaryPreferences []string         `json:"dietary_preferences"`
	TimeRanges         map[string]Range `json:"time_ranges"`
	SortOptions        []SortOption     `json:"sort_options"`
}

// FilterOptions collects the distinct cuisines, difficulties and dietary
// preferences in the store, plus time and servings ranges.
func (s *Searcher) FilterOptions(ctx context.Context) (*Options, error) {
	cuisines := map[string]struct{}{}
	levels := map[string]struct{}{}
	diets := map[string]struct{}{}
	var prep, cook, total, servings Range

	err := s.store.Scan(ctx, func(r *models.Recipe) error {
		if c := strings.TrimSpace(r.CuisineType); c != "" {
			cuisines[c] = struct{}{}
		}
		if d := strings.TrimSpace(r.DifficultyLevel); d != "" {
			levels[d] = struct{}{}
		}
		for _, p := range r.DietaryPreferences {
			if p = strings.TrimSpace(p); p != "" {
				diets[p] = struct{}{}
			}
		}
		prep.observe(r.PrepTime)
		cook.observe(r.CookTime)
		total.observe(r.EffectiveTotalTime())
		servings.observe(r.Servings)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Options{
		CuisineTypes:       sortedKeys(cuisines),
		DifficultyLevels:   sortedKeys(levels),
		DietaryPreferences: sortedKeys(diets),
		TimeRanges: map[string]Range{
			SortPrepTime:  prep,
			SortCookTime:  cook,
			SortTotalTime: total,
			SortServings:  servings,
		},
		SortOptions: SortOptions,
	}, nil
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store health values reported by Status.
const (
	StatusHealthy      = "healthy"
	StatusSchemaIssues = "schema_issues"
	StatusUnavailable  = "unavailable"
)

// Status summarises the store for operators.
type Status struct {
	Status                string   `json:"status"`
	TotalRecipes          int      `json:"total_recipes"`
	TotalIngredients      int      `json:"total_ingredients"`
	TotalInstructions     int      `json:"total_instructions"`
	TotalNutritionEntries int      `json:"total_nutrition_entries"`
	SampleRecipes         []string `json:"sample_recipes"`
	MissingTables         []string `json:"missing_tables,omitempty"`
	Note                  string   `json:"note"`
	Error                 string   `json:"error,omitempty"`
}

// schemaChecker is implemented by stores that can report missing tables.
type schemaChecker interface {
	MissingTables(ctx context.Context) ([]string, error)
}

const maxSamples = 5

// Status counts recipes and their parts. It never fails: an unreachable
// store is reported as StatusUnavailable, and an empty store or missing
// tables as StatusSchemaIssues.
func (s *Searcher) Status(ctx context.Context) *Status {
	st := &Status{SampleRecipes: []string{}}
	err := s.store.Scan(ctx, func(r *models.Recipe) error {
		st.TotalRecipes++
		st.TotalIngredients += len(r.Ingredients)
		st.TotalInstructions += len(r.Instructions)
		if r.Nutrition != nil {
			st.TotalNutritionEntries++
		}
		if len(st.SampleRecipes) < maxSamples {
			st.SampleRecipes = append(st.SampleRecipes, r.Title)
		}
		return nil
	})
	if err != nil {
		st.Status = StatusUnavailable
		st.Error = err.Error()
		if errors.Is(err, ErrStoreUnavailable) {
			st.Note = "Recipe store is unreachable. Check the database connection."
		} else {
			st.Note = "Status check was interrupted."
		}
		return st
	}

	if sc, ok := s.store.(schemaChecker); ok {
		missing, err := sc.MissingTables(ctx)
		if err == nil {
			st.MissingTables = missing
		}
	}
	switch {
	case len(st.MissingTables) > 0:
		st.Status = StatusSchemaIssues
		st.Note = "Recipe tables are missing. Run recipectl migrate up."
	case st.TotalRecipes == 0:
		st.Status = StatusSchemaIssues
		st.Note = "No recipes loaded. Enable db.seed or run recipectl import."
	default:
		st.Status = StatusHealthy
		st.Note = "Recipe store is healthy."
	}
	return st
}

package recipe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"recipelens/models"
)

// Paging defaults.
const (
	DefaultPage    = 1
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Sort keys accepted by Filter.SortBy.
const (
	SortTitle     = "title"
	SortPrepTime  = "prep_time"
	SortCookTime  = "cook_time"
	SortTotalTime = "total_time"
	SortCreatedAt = "created_at"
	SortServings  = "servings"
)

// SortOption describes one sort key for clients building a filter UI.
type SortOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// SortOptions lists the accepted sort keys.
var SortOptions = []SortOption{
	{SortTitle, "Title"},
	{SortPrepTime, "Preparation Time"},
	{SortCookTime, "Cooking Time"},
	{SortTotalTime, "Total Time"},
	{SortCreatedAt, "Date Created"},
	{SortServings, "Servings"},
}

// Filter selects recipes. Every set field must hold; bounds are inclusive
// and a nil bound is no constraint. A recipe that lacks the value a bound
// refers to (no nutrition row, an unknown nutrient or time) does not pass
// that bound.
type Filter struct {
	Query              string   `json:"query" form:"query"`
	Cuisine            string   `json:"cuisine_type" form:"cuisine_type"`
	Difficulty         string   `json:"difficulty_level" form:"difficulty_level"`
	MaxPrepTime        *int     `json:"max_prep_time" form:"max_prep_time"`
	MaxCookTime        *int     `json:"max_cook_time" form:"max_cook_time"`
	MaxTotalTime       *int     `json:"max_total_time" form:"max_total_time"`
	MinServings        *int     `json:"min_servings" form:"min_servings"`
	MaxServings        *int     `json:"max_servings" form:"max_servings"`
	DietaryPreferences []string `json:"dietary_preferences" form:"dietary_preferences"`
	MaxCalories        *float64 `json:"max_calories" form:"max_calories"`
	MinProtein         *float64 `json:"min_protein" form:"min_protein"`
	MaxCarbs           *float64 `json:"max_carbs" form:"max_carbs"`
	MaxFat             *float64 `json:"max_fat" form:"max_fat"`
	MaxSugar           *float64 `json:"max_sugar" form:"max_sugar"`
	MaxSodium          *float64 `json:"max_sodium" form:"max_sodium"`
	SortBy             string   `json:"sort_by" form:"sort_by"`
	SortOrder          string   `json:"sort_order" form:"sort_order"`
	Page               int      `json:"page" form:"page"`
	PerPage            int      `json:"per_page" form:"per_page"`
}

// Page is one page of search results.
type Page struct {
	Recipes      []models.Recipe `json:"recipes"`
	TotalRecipes int             `json:"total_recipes"`
	TotalPages   int             `json:"total_pages"`
	CurrentPage  int             `json:"current_page"`
	PerPage      int             `json:"per_page"`
}

// Normalize fills paging and sort defaults, clamps per_page and rejects
// unknown sort keys.
func (f *Filter) Normalize() error {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.PerPage <= 0 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	f.SortBy = strings.ToLower(strings.TrimSpace(f.SortBy))
	f.SortOrder = strings.ToLower(strings.TrimSpace(f.SortOrder))
	if f.SortBy == "" {
		f.SortBy = SortCreatedAt
		if f.SortOrder == "" {
			f.SortOrder = "desc"
		}
	}
	if f.SortOrder == "" {
		f.SortOrder = "asc"
	}
	valid := false
	for _, o := range SortOptions {
		if o.Value == f.SortBy {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: sort_by %q", ErrInvalidFilter, f.SortBy)
	}
	if f.SortOrder != "asc" && f.SortOrder != "desc" {
		return fmt.Errorf("%w: sort_order %q", ErrInvalidFilter, f.SortOrder)
	}
	return nil
}

// Searcher applies filters over a Store.
type Searcher struct {
	store Store
}

// NewSearcher returns a searcher over store.
func NewSearcher(store Store) *Searcher {
	return &Searcher{store: store}
}

// Search returns the requested page of recipes matching f.
func (s *Searcher) Search(ctx context.Context, f Filter) (*Page, error) {
	if err := f.Normalize(); err != nil {
		return nil, err
	}
	var hits []models.Recipe
	err := s.store.Scan(ctx, func(r *models.Recipe) error {
		if f.Matches(r) {
			hits = append(hits, *r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sortRecipes(hits, f.SortBy, f.SortOrder == "desc")

	page := &Page{
		Recipes:      []models.Recipe{},
		TotalRecipes: len(hits),
		TotalPages:   (len(hits) + f.PerPage - 1) / f.PerPage,
		CurrentPage:  f.Page,
		PerPage:      f.PerPage,
	}
	start := (f.Page - 1) * f.PerPage
	if start < len(hits) {
		end := min(start+f.PerPage, len(hits))
		page.Recipes = hits[start:end]
	}
	return page, nil
}

// Matches reports whether r passes every constraint in f.
func (f *Filter) Matches(r *models.Recipe) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if !strings.Contains(strings.ToLower(r.Title), q) && !strings.Contains(strings.ToLower(r.Description), q) {
			return false
		}
	}
	if f.Cuisine != "" && !strings.EqualFold(strings.TrimSpace(f.Cuisine), r.CuisineType) {
		return false
	}
	if f.Difficulty != "" && !strings.EqualFold(strings.TrimSpace(f.Difficulty), r.DifficultyLevel) {
		return false
	}
	if !atMost(r.PrepTime, f.MaxPrepTime) || !atMost(r.CookTime, f.MaxCookTime) ||
		!atMost(r.EffectiveTotalTime(), f.MaxTotalTime) {
		return false
	}
	if !atLeast(r.Servings, f.MinServings) || !atMost(r.Servings, f.MaxServings) {
		return false
	}
	for _, want := range f.DietaryPreferences {
		if want = strings.TrimSpace(want); want != "" && !hasFold(r.DietaryPreferences, want) {
			return false
		}
	}
	return f.matchesNutrition(r.Nutrition)
}

func (f *Filter) matchesNutrition(n *models.Nutrition) bool {
	if f.MaxCalories == nil && f.MinProtein == nil && f.MaxCarbs == nil &&
		f.MaxFat == nil && f.MaxSugar == nil && f.MaxSodium == nil {
		return true
	}
	if n == nil {
		return false
	}
	var cal *float64
	if n.Calories != nil {
		c := float64(*n.Calories)
		cal = &c
	}
	return atMost(cal, f.MaxCalories) &&
		atLeast(n.Protein, f.MinProtein) &&
		atMost(n.Carbohydrates, f.MaxCarbs) &&
		atMost(n.Fat, f.MaxFat) &&
		atMost(n.Sugar, f.MaxSugar) &&
		atMost(n.Sodium, f.MaxSodium)
}

type number interface{ ~int | ~float64 }

func atMost[T number](v, bound *T) bool {
	if bound == nil {
		return true
	}
	return v != nil && *v <= *bound
}

func atLeast[T number](v, bound *T) bool {
	if bound == nil {
		return true
	}
	return v != nil && *v >= *bound
}

func hasFold(list []string, want string) bool {
	for _, s := range list {
		if strings.EqualFold(strings.TrimSpace(s), want) {
			return true
		}
	}
	return false
}

// sortRecipes orders by key; unknown values sort last in either direction
// and ties fall back to ascending id.
func sortRecipes(rs []models.Recipe, key string, desc bool) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := &rs[i], &rs[j]
		c := compareBy(a, b, key)
		if c == 0 {
			return a.ID < b.ID
		}
		if c == nullsLast {
			return true
		}
		if c == -nullsLast {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

// nullsLast is returned by compareBy when exactly one side is unknown: a
// positive value means a is known and b is not.
const nullsLast = 2

func compareBy(a, b *models.Recipe, key string) int {
	switch key {
	case SortTitle:
		return strings.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	case SortPrepTime:
		return compareOpt(a.PrepTime, b.PrepTime)
	case SortCookTime:
		return compareOpt(a.CookTime, b.CookTime)
	case SortTotalTime:
		return compareOpt(a.EffectiveTotalTime(), b.EffectiveTotalTime())
	case SortServings:
		return compareOpt(a.Servings, b.Servings)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareOpt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -nullsLast
	case b == nil:
		return nullsLast
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

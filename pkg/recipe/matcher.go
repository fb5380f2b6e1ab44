package recipe

import (
	"context"
	"sort"

	"recipelens/models"
	"recipelens/pkg/ingredient"
)

// MatchResult is a recipe with its ingredient overlap score. It marshals as
// the recipe's fields plus match_score and matched_ingredients.
type MatchResult struct {
	models.Recipe
	MatchScore         float64  `json:"match_score"`
	MatchedIngredients []string `json:"matched_ingredients"`
}

// Matcher ranks recipes by how much of their ingredient list the caller
// already has.
type Matcher struct {
	store Store
	cat   *ingredient.Catalog
}

// NewMatcher returns a matcher over store; names on both sides are
// canonicalized through cat.
func NewMatcher(store Store, cat *ingredient.Catalog) *Matcher {
	return &Matcher{store: store, cat: cat}
}

// Match scores every recipe as |input ∩ recipe| / |recipe| over canonical
// ingredient names. Recipes without overlap are left out; the rest are
// sorted by score, then id. limit <= 0 returns every match. An empty
// ingredient list is not an error and yields an empty result without
// touching the store.
func (m *Matcher) Match(ctx context.Context, ingredients []string, limit int) ([]MatchResult, error) {
	have := make(map[string]struct{}, len(ingredients))
	for _, in := range ingredients {
		if c := m.cat.Canonical(in); c != "" {
			have[c] = struct{}{}
		}
	}
	out := []MatchResult{}
	if len(have) == 0 {
		return out, nil
	}

	err := m.store.Scan(ctx, func(r *models.Recipe) error {
		need := m.recipeIngredients(r)
		if len(need) == 0 {
			return nil
		}
		var matched []string
		for _, name := range need {
			if _, ok := have[name]; ok {
				matched = append(matched, name)
			}
		}
		if len(matched) == 0 {
			return nil
		}
		out = append(out, MatchResult{
			Recipe:             *r,
			MatchScore:         float64(len(matched)) / float64(len(need)),
			MatchedIngredients: matched,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchScore != out[j].MatchScore {
			return out[i].MatchScore > out[j].MatchScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// recipeIngredients returns the distinct canonical names of r's ingredients
// in list order.
func (m *Matcher) recipeIngredients(r *models.Recipe) []string {
	seen := make(map[string]struct{}, len(r.Ingredients))
	names := make([]string, 0, len(r.Ingredients))
	for _, ing := range r.Ingredients {
		c := m.cat.Canonical(ing.Name)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		names = append(names, c)
	}
	return names
}

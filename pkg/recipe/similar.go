package recipe

import (
	"context"
	"fmt"
	"sort"

	"recipelens/models"
)

// minSimilarity drops recipes that share only an incidental staple.
const minSimilarity = 0.1

// SimilarResult is a recipe ranked by how many canonical ingredients it
// shares with another recipe.
type SimilarResult struct {
	models.Recipe
	SimilarityScore   float64  `json:"similarity_score"`
	SharedIngredients []string `json:"shared_ingredients"`
}

type canonicalRecipe struct {
	recipe models.Recipe
	names  []string
}

// Similar ranks every other recipe by the Jaccard index of its canonical
// ingredient set against recipe id's. Scores at or below 0.1 are left out;
// the rest sort by score, then id. limit <= 0 returns every result.
func (m *Matcher) Similar(ctx context.Context, id uint, limit int) ([]SimilarResult, error) {
	var (
		target *canonicalRecipe
		others []canonicalRecipe
	)
	err := m.store.Scan(ctx, func(r *models.Recipe) error {
		cr := canonicalRecipe{recipe: *r, names: m.recipeIngredients(r)}
		if r.ID == id {
			target = &cr
			return nil
		}
		others = append(others, cr)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: id %d", ErrRecipeNotFound, id)
	}

	base := make(map[string]struct{}, len(target.names))
	for _, n := range target.names {
		base[n] = struct{}{}
	}
	out := []SimilarResult{}
	for _, o := range others {
		var shared []string
		for _, n := range o.names {
			if _, ok := base[n]; ok {
				shared = append(shared, n)
			}
		}
		union := len(base) + len(o.names) - len(shared)
		if union == 0 {
			continue
		}
		score := float64(len(shared)) / float64(union)
		if score <= minSimilarity {
			continue
		}
		out = append(out, SimilarResult{Recipe: o.recipe, SimilarityScore: score, SharedIngredients: shared})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

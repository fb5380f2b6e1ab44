// Package recipe scores stored recipes against detected ingredients and
// serves filtered, paginated recipe search.
package recipe

import (
	"context"
	"sort"
	"sync"

	"recipelens/models"
)

// Store is the read side of the recipe corpus. Scan calls fn for every
// recipe, fully loaded, in ascending id order; an error returned by fn stops
// the scan and is returned as is. Backend failures are wrapped in
// ErrStoreUnavailable.
type Store interface {
	Scan(ctx context.Context, fn func(*models.Recipe) error) error
}

// MemoryStore is an in-process Store used by tests, the CLI and as the
// server's store when no database is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	recipes []models.Recipe
	nextID  uint
}

// NewMemoryStore copies recipes into a new store, assigning ids to those
// that have none.
func NewMemoryStore(recipes []models.Recipe) *MemoryStore {
	s := &MemoryStore{nextID: 1}
	for _, r := range recipes {
		s.Add(r)
	}
	return s
}

// Add stores r and returns its id.
func (s *MemoryStore) Add(r models.Recipe) uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.nextID
	}
	if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
	r.FillTotalTime()
	r.Ingredients = append([]models.RecipeIngredient(nil), r.Ingredients...)
	r.Instructions = append([]models.Instruction(nil), r.Instructions...)
	for i := range r.Ingredients {
		r.Ingredients[i].RecipeID = r.ID
	}
	for i := range r.Instructions {
		r.Instructions[i].RecipeID = r.ID
	}
	if r.Nutrition != nil {
		n := *r.Nutrition
		n.RecipeID = r.ID
		r.Nutrition = &n
	}
	s.recipes = append(s.recipes, r)
	sort.SliceStable(s.recipes, func(i, j int) bool { return s.recipes[i].ID < s.recipes[j].ID })
	return r.ID
}

// Len returns the number of stored recipes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recipes)
}

// Scan implements Store. fn works on a shallow copy and must not modify
// the ingredient, instruction or nutrition data it points at.
func (s *MemoryStore) Scan(ctx context.Context, fn func(*models.Recipe) error) error {
	s.mu.RLock()
	snapshot := make([]models.Recipe, len(s.recipes))
	copy(snapshot, s.recipes)
	s.mu.RUnlock()

	for i := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

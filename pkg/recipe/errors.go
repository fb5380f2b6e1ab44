package recipe

import "errors"

// ErrStoreUnavailable wraps every failure of the backing recipe store.
var ErrStoreUnavailable = errors.New("recipe store unavailable")

// ErrInvalidFilter is returned for search filters that cannot be applied.
var ErrInvalidFilter = errors.New("invalid search filter")

// ErrRecipeNotFound is returned when a recipe id is not in the store.
var ErrRecipeNotFound = errors.New("recipe not found")

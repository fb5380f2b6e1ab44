package strdist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"tomato", "tomato", 0},
		{"tomato", "tomatoes", 2},
		{"kitten", "sitting", 3},
		{"onion", "0nion", 1},
		{"café", "cafe", 1},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
			assert.Equal(t, tt.want, Levenshtein(tt.b, tt.a))
		})
	}
}

func TestNormalizedAndSimilarity(t *testing.T) {
	assert.Equal(t, 0.0, Normalized("", ""))
	assert.InDelta(t, 0.2, Normalized("chips", "chip"), 1e-9)
	assert.InDelta(t, 1.0, Similarity("garlic", "garlic"), 1e-9)
	assert.InDelta(t, 0.0, Similarity("abc", "xyz"), 1e-9)
}
